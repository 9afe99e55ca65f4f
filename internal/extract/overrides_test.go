// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"strings"
	"testing"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

func TestScanOverrides(t *testing.T) {
	t.Parallel()

	recognized := pkgbuild.DefaultCatalog().Contains

	tests := []struct {
		name       string
		definition string
		wantNames  []string
		// wantIn and wantOut check the fragment of the first name.
		wantIn  []string
		wantOut []string
	}{
		{
			name:       "plain assignment",
			definition: "package_foo () \n{ \n    depends=(glibc zlib);\n    make install\n}",
			wantNames:  []string{"depends"},
			wantIn:     []string{"depends=(glibc zlib)"},
			wantOut:    []string{"make install"},
		},
		{
			name:       "local declaration",
			definition: "package_foo () \n{ \n    local pkgdesc='split part'\n}",
			wantNames:  []string{"pkgdesc"},
			wantIn:     []string{"local pkgdesc='split part'"},
		},
		{
			name:       "helper variables kept in prefix",
			definition: "package_bar () \n{ \n    _base=lib\n    provides=(\"$_base\")\n    touch file\n    conflicts=(old)\n}",
			wantNames:  []string{"provides", "conflicts"},
			wantIn:     []string{"_base=lib", "provides="},
			wantOut:    []string{"touch", "conflicts"},
		},
		{
			name:       "nested assignment not discovered",
			definition: "package () \n{ \n    if true; then\n        depends=(x)\n    fi\n}",
		},
		{
			name:       "unrecognized names ignored",
			definition: "build () \n{ \n    CFLAGS=-O2\n    make\n}",
		},
		{
			name:       "prefix assignment on a command ignored",
			definition: "build () \n{ \n    depends=x make\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fn := strings.Fields(tt.definition)[0]
			got, err := ScanOverrides(fn, tt.definition, recognized)
			if err != nil {
				t.Fatalf("ScanOverrides() error = %v", err)
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("ScanOverrides() = %+v, want names %v", got, tt.wantNames)
			}
			for i, a := range got {
				if a.Name != tt.wantNames[i] || a.Function != fn {
					t.Errorf("assignment %d = %s/%s, want %s/%s", i, a.Function, a.Name, fn, tt.wantNames[i])
				}
			}
			if len(got) == 0 {
				return
			}
			for _, s := range tt.wantIn {
				if !strings.Contains(got[0].Fragment, s) {
					t.Errorf("fragment %q missing %q", got[0].Fragment, s)
				}
			}
			for _, s := range tt.wantOut {
				if strings.Contains(got[0].Fragment, s) {
					t.Errorf("fragment %q must not contain %q", got[0].Fragment, s)
				}
			}
		})
	}
}

func TestScanOverridesSyntaxError(t *testing.T) {
	t.Parallel()

	if _, err := ScanOverrides("build", "build () { if; }", pkgbuild.DefaultCatalog().Contains); err == nil {
		t.Fatal("expected a parse error")
	}
}
