package dialects

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: "python"},
		{input: "python", want: "python"},
		{input: "Starlark", want: "python"},
		{input: "js", want: "javascript"},
		{input: "javascript", want: "javascript"},
		{input: " tengo ", want: "tengo"},
		{input: "ruby", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sb, err := New(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sb.Name() != tt.want {
				t.Errorf("New(%q).Name() = %q, want %q", tt.input, sb.Name(), tt.want)
			}
		})
	}
}

func TestFromExtension(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOk bool
	}{
		{path: "turn.py", want: "python", wantOk: true},
		{path: "turn.star", want: "python", wantOk: true},
		{path: "dir/turn.js", want: "javascript", wantOk: true},
		{path: "turn.tengo", want: "tengo", wantOk: true},
		{path: "notes.md", wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := FromExtension(tt.path)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("FromExtension(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
