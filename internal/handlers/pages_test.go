package handlers

import (
	"testing"

	"alphadroid.org/devices-web/internal/seo"
)

func TestBuildPageDataMarksActiveNav(t *testing.T) {
	vm := BuildPageData("en", "#download", seo.Default("AlphaDroid", "Device catalog", "https://alphadroid.example"))
	if vm.Title != "AlphaDroid" || vm.SEO.Canonical != "https://alphadroid.example/" {
		t.Fatalf("unexpected meta %+v", vm.SEO)
	}
	var active string
	for _, it := range vm.Nav {
		if it.Active {
			active = it.Key
		}
	}
	if active != "devices" {
		t.Fatalf("expected devices to be active, got %q", active)
	}
}

func TestBuildPageDataDefaultsToHome(t *testing.T) {
	vm := BuildPageData("ja", "", seo.Meta{Title: "AlphaDroid"})
	if vm.Lang != "ja" || vm.Partial {
		t.Fatalf("unexpected page data %+v", vm)
	}
	if len(vm.Nav) == 0 || !vm.Nav[0].Active || vm.Nav[0].Key != "home" {
		t.Fatalf("expected home to be active, got %+v", vm.Nav)
	}
}
