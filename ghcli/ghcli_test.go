package ghcli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/utilitywarehouse/release-mirror/mirror"
)

func TestParseReleaseList(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    []mirror.Release
		wantErr bool
	}{
		{
			name: "empty output",
			out:  "",
		},
		{
			name: "single release",
			out:  "v2\tLatest\tv2\t2024-02-01T10:00:00Z",
			want: []mirror.Release{
				{Title: "v2", Status: "Latest", Tag: "v2", Date: "2024-02-01T10:00:00Z"},
			},
		},
		{
			name: "multiple releases keep listing order",
			out:  "v2\tLatest\tv2\t2024-02-01T10:00:00Z\nv1\t\tv1\t2024-01-01T10:00:00Z\n",
			want: []mirror.Release{
				{Title: "v2", Status: "Latest", Tag: "v2", Date: "2024-02-01T10:00:00Z"},
				{Title: "v1", Status: "", Tag: "v1", Date: "2024-01-01T10:00:00Z"},
			},
		},
		{
			name: "empty title and status preserved",
			out:  "\tDraft\tv0.1.0-rc1\t2023-12-12T00:00:00Z",
			want: []mirror.Release{
				{Title: "", Status: "Draft", Tag: "v0.1.0-rc1", Date: "2023-12-12T00:00:00Z"},
			},
		},
		{
			name: "title containing spaces",
			out:  "big release two\tPre-release\tv2.0.0-beta\t2024-03-01T00:00:00Z",
			want: []mirror.Release{
				{Title: "big release two", Status: "Pre-release", Tag: "v2.0.0-beta", Date: "2024-03-01T00:00:00Z"},
			},
		},
		{
			name:    "too few fields",
			out:     "v1\tv1\t2024-01-01",
			wantErr: true,
		},
		{
			name:    "too many fields",
			out:     "v1\tLatest\tv1\t2024-01-01\textra",
			wantErr: true,
		},
		{
			name:    "bad line in the middle is fatal",
			out:     "v2\tLatest\tv2\t2024-02-01\nbroken line\nv1\t\tv1\t2024-01-01",
			wantErr: true,
		},
		{
			name: "blank lines are skipped",
			out:  "\n\nv1\tLatest\tv1\t2024-01-01\n\n",
			want: []mirror.Release{
				{Title: "v1", Status: "Latest", Tag: "v1", Date: "2024-01-01"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReleaseList(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReleaseList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReleaseList() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
