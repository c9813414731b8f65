package mirror

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRemote(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		want    RepoRef
		wantErr bool
	}{
		{name: "empty", remote: "", wantErr: true},
		{name: "owner repo", remote: "acme/widget", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "https url", remote: "https://github.com/acme/widget", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "https url with git suffix", remote: "https://github.com/acme/widget.git", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "scp url", remote: "git@github.com:acme/widget.git", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "ssh url", remote: "ssh://git@github.com/acme/widget.git", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "trailing slash", remote: "https://github.com/acme/widget/", want: RepoRef{Owner: "acme", Name: "widget"}},
		{name: "local path", remote: "/home/user/src/widget", want: RepoRef{Name: "widget", LocalPath: "/home/user/src/widget"}},
		{name: "local path with git suffix", remote: "/home/user/src/widget.git", want: RepoRef{Name: "widget", LocalPath: "/home/user/src/widget.git"}},
		{name: "missing owner", remote: "widget", wantErr: true},
		{name: "too many segments", remote: "a/b/c", wantErr: true},
		{name: "abs single segment is local", remote: "/widget", want: RepoRef{Name: "widget", LocalPath: "/widget"}},
		{name: "empty name", remote: "acme/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRemote(tt.remote)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRemote() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRemote() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepoRef_Slug(t *testing.T) {
	if got := (RepoRef{Owner: "acme", Name: "widget"}).Slug(); got != "acme/widget" {
		t.Errorf("Slug() = %q, want %q", got, "acme/widget")
	}
	if got := (RepoRef{Name: "widget", LocalPath: "/src/widget"}).Slug(); got != "widget" {
		t.Errorf("Slug() = %q, want %q", got, "widget")
	}
}

func TestRepoRef_CloneURL(t *testing.T) {
	ref := RepoRef{Owner: "acme", Name: "widget"}
	if got := ref.CloneURL(); got != "https://github.com/acme/widget.git" {
		t.Errorf("CloneURL() = %q", got)
	}
}

func Test_validateTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{"1", "v1.0.0", false},
		{"2", "release-2024.01", false},
		{"3", "", true},
		{"4", ".", true},
		{"5", "..", true},
		{"6", "../evil", true},
		{"7", "a/b", true},
		{"8", `a\b`, true},
		{"9", "v1.0.0-rc.1+build.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateTag(tt.tag); (err != nil) != tt.wantErr {
				t.Errorf("validateTag(%q) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
		})
	}
}
