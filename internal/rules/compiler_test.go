package rules

import (
	"errors"
	"testing"
)

func TestCompileRecognisedStatements(t *testing.T) {
	cases := []struct {
		name string
		text string
		want PolicyEffect
	}{
		{
			name: "delay all flex by extra days",
			text: "delay all flex suppliers by 15 extra days",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierType, SupplierType: "flex"},
				Field:     FieldMaxDelayDays,
				Operation: OpAdd,
				Value:     15,
			},
		},
		{
			name: "delay named supplier",
			text: "delay Acme Corp by 10 extra days",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "Acme Corp"},
				Field:     FieldMaxDelayDays,
				Operation: OpAdd,
				Value:     10,
			},
		},
		{
			name: "set all core max delay",
			text: "set all core suppliers max delay to 3 days",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierType, SupplierType: "core"},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     3,
			},
		},
		{
			name: "set named max delay",
			text: "set Acme Corp max delay to 7 days",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "Acme Corp"},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     7,
			},
		},
		{
			name: "set supplier priority by id",
			text: "set supplier 42 priority to 2",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierID, SupplierID: 42},
				Field:     FieldPriority,
				Operation: OpSet,
				Value:     2,
			},
		},
		{
			name: "set negative priority by id",
			text: "set supplier 7 priority to -1",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierID, SupplierID: 7},
				Field:     FieldPriority,
				Operation: OpSet,
				Value:     -1,
			},
		},
		{
			name: "prioritize payments",
			text: "prioritize Acme Corp payments",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "Acme Corp"},
				Field:     FieldPriority,
				Operation: OpAdd,
				Value:     1,
			},
		},
		{
			name: "deprioritise payments british spelling",
			text: "deprioritise Globex payments",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "Globex"},
				Field:     FieldPriority,
				Operation: OpAdd,
				Value:     -1,
			},
		},
		{
			name: "legacy compact form",
			text: "Supplier A: flex delay 10 days",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "Supplier A"},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     10,
			},
		},
		{
			name: "legacy form is case insensitive",
			text: "acme corp: CORE delay 3 day",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: "acme corp"},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     3,
			},
		},
		{
			name: "surrounding whitespace ignored",
			text: "  delay all core suppliers by 2 extra days  ",
			want: PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierType, SupplierType: "core"},
				Field:     FieldMaxDelayDays,
				Operation: OpAdd,
				Value:     2,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compile(tc.text)
			if err != nil {
				t.Fatalf("Compile(%q) returned error: %v", tc.text, err)
			}
			if got != tc.want {
				t.Fatalf("Compile(%q) = %+v, want %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestCompileRejectsUnrecognisedStatements(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		wantSegment string
	}{
		{
			name:        "free prose",
			text:        "Invalid rule format",
			wantSegment: "Invalid rule format",
		},
		{
			name:        "non numeric day count",
			text:        "delay all flex suppliers by ten extra days",
			wantSegment: "all flex suppliers by ten extra days",
		},
		{
			name:        "legacy form with unknown type",
			text:        "Acme Corp: flexible delay 10 days",
			wantSegment: "flexible delay 10 days",
		},
		{
			name:        "compound statement",
			text:        "delay Acme Corp by 5 extra days and prioritize Acme Corp payments",
			wantSegment: "and prioritize Acme Corp payments",
		},
		{
			name:        "empty statement",
			text:        "   ",
			wantSegment: "(empty)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.text)
			if err == nil {
				t.Fatalf("Compile(%q) succeeded, want parse error", tc.text)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Compile(%q) returned %T, want *ParseError", tc.text, err)
			}
			if perr.Segment != tc.wantSegment {
				t.Fatalf("Compile(%q) segment = %q, want %q", tc.text, perr.Segment, tc.wantSegment)
			}
		})
	}
}

func TestCompileNeverPartiallyApplies(t *testing.T) {
	// A statement resolving to more than one clause must fail whole.
	effect, err := Compile("set Acme Corp max delay to 7 days and supplier 9 priority to 2")
	if err == nil {
		t.Fatalf("expected rejection, got effect %+v", effect)
	}
}
