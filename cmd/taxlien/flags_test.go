package main

import (
	"flag"
	"testing"
)

func TestOptionalFlags(t *testing.T) {
	fs := flag.NewFlagSet("properties", flag.ContinueOnError)
	var minScore, maxScore optInt
	var minEquity optFloat
	fs.Var(&minScore, "min-score", "")
	fs.Var(&maxScore, "max-score", "")
	fs.Var(&minEquity, "min-equity", "")

	if err := fs.Parse([]string{"--min-score=60", "--min-equity", "2.5"}); err != nil {
		t.Fatal(err)
	}
	if minScore.v == nil || *minScore.v != 60 || maxScore.v != nil {
		t.Fatalf("min=%v max=%v", minScore.v, maxScore.v)
	}
	if minEquity.v == nil || *minEquity.v != 2.5 || minEquity.String() != "2.5" {
		t.Fatalf("equity=%v", minEquity.v)
	}
	if err := minScore.Set("high"); err == nil {
		t.Fatal("expected parse error")
	}
}
