package backup

import "testing"

func TestValidatePath(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "plain absolute path", path: "/data/home"},
		{name: "relative path", path: "data/home"},
		{name: "underscore and hyphen", path: "/srv/my_sub-vol"},
		{name: "digits", path: "/vol0/a1"},
		{name: "empty", path: "", wantErr: true},
		{name: "embedded space", path: "/data/my vol", wantErr: true},
		{name: "shell metacharacter", path: "/data/$(reboot)", wantErr: true},
		{name: "quote", path: "/data/it's", wantErr: true},
		{name: "semicolon", path: "/data;rm", wantErr: true},
		{name: "dot", path: "/data/../etc", wantErr: true},
		{name: "newline", path: "/data\n/b", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q, got nil", tc.path)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.path, err)
			}
		})
	}
}
