package main

import (
	"io"
	"reflect"
	"testing"

	"github.com/coreperf-io/coreperf/client"
)

func TestNormalizeWorkloads(t *testing.T) {
	testCases := []struct {
		testCase  string
		workloads []string
		want      []string
	}{
		{
			"No workloads",
			nil,
			nil,
		},
		{
			"Single workload no spaces",
			[]string{"build/bench.elf"},
			[]string{"build/bench.elf"},
		},
		{
			"Single workload with spaces",
			[]string{" build/bench.elf  "},
			[]string{"build/bench.elf"},
		},
		{
			"2 instances of --workload",
			[]string{"a.elf", "b.elf"},
			[]string{"a.elf", "b.elf"},
		},
		{
			"Single instance of --workload with multiple paths and spaces",
			[]string{"  a.elf,    b.elf  ,c.elf"},
			[]string{"a.elf", "b.elf", "c.elf"},
		},
		{
			"Multiple instances of --workload with multiple paths and spaces",
			[]string{"a.elf", " b.elf  ,   c.elf ", "    d.elf        "},
			[]string{"a.elf", "b.elf", "c.elf", "d.elf"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.testCase, func(t *testing.T) {
			workloads, err := normalizeWorkloads(tc.workloads)
			if err != nil {
				t.Fatalf("returned error: %#v", tc)
			}
			if !reflect.DeepEqual(workloads, tc.want) {
				t.Fatalf("\n  wanted: %#v\n     got: %#v", tc.want, workloads)
			}
		})
	}
}

func TestNormalizeWorkloadsEmptyPath(t *testing.T) {
	for _, values := range [][]string{{"a.elf,,b.elf"}, {" "}, {"a.elf", ""}} {
		if _, err := normalizeWorkloads(values); err == nil {
			t.Fatalf("expected error for %#v", values)
		}
	}
}

func TestNewLoggerSilent(t *testing.T) {
	config := client.NewDefaultConfig()
	if log := newLogger(config); log.Writer() == io.Discard {
		t.Fatal("logger discards output without log.silent")
	}
	config.LogSilent = true
	if log := newLogger(config); log.Writer() != io.Discard {
		t.Fatal("logger writes output with log.silent set")
	}
}
