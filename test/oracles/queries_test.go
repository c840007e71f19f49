package oracles

import (
	"regexp"
	"strconv"
	"testing"

	"disputeflow/escrow"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

func TestOracleArgsMatchPlaceholders(t *testing.T) {
	params := NewParams(escrow.DefaultCustodian, "8000000000")
	if params.Custodian != "arbitration-escrow" {
		t.Fatalf("expected custodian arbitration-escrow, got %q", params.Custodian)
	}

	seen := make(map[string]bool)
	for _, o := range All() {
		if seen[o.Name] {
			t.Fatalf("duplicate oracle %s", o.Name)
		}
		seen[o.Name] = true

		highest := 0
		for _, m := range placeholder.FindAllStringSubmatch(o.SQL, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				t.Fatalf("%s: placeholder %s: %v", o.Name, m[0], err)
			}
			if n > highest {
				highest = n
			}
		}
		args := o.Args(params)
		if len(args) != highest {
			t.Fatalf("%s: %d args for %d placeholders", o.Name, len(args), highest)
		}
		for i, a := range args {
			if _, ok := a.(string); !ok {
				t.Fatalf("%s: arg %d is %T, want string", o.Name, i+1, a)
			}
		}
	}
}
