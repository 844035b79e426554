package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      Command
		wantKnown bool
	}{
		{"引数なしはserve", nil, CommandServe, false},
		{"serve", []string{"serve"}, CommandServe, true},
		{"worker", []string{"worker"}, CommandWorker, true},
		{"migrate", []string{"migrate"}, CommandMigrate, true},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck, true},
		{"大文字小文字を区別しない", []string{"Worker"}, CommandWorker, true},
		{"未知のコマンドはserve", []string{"seed-products"}, CommandServe, false},
		{"余分な引数は無視する", []string{"migrate", "--steps", "1"}, CommandMigrate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := ParseCommand(tt.args)
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
			if known != tt.wantKnown {
				t.Errorf("ParseCommand(%v) known = %v, want %v", tt.args, known, tt.wantKnown)
			}
		})
	}
}
