package deltacheckpoint

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// TestPartitionConstraintDataDriven replays partition-constraint and
// canonicalization scenarios scripted under testdata.
//
// Commands:
//
//	canonicalize k1=v1 k2=v2 ...      -> one "k: <value or NULL>" line per input, sorted by key
//	constraint k1=v1,v2 k2=v3         -> defines the active PartitionConstraint for subsequent allows commands
//	allows k1=v1 k2=v2 ...            -> "true" or "false" against the active constraint
func TestPartitionConstraintDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata/partition", func(t *testing.T, path string) {
		var constraint PartitionConstraint

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "constraint":
				constraint = parseConstraint(d.CmdArgs)
				return ""
			case "canonicalize":
				raw := map[string]string{}
				for _, arg := range d.CmdArgs {
					raw[arg.Key] = arg.Vals[0]
				}
				canonical := canonicalizePartitionValues(raw)
				return formatCanonical(canonical)
			case "allows":
				raw := map[string]string{}
				for _, arg := range d.CmdArgs {
					raw[arg.Key] = arg.Vals[0]
				}
				got := constraint.Allows(canonicalizePartitionValues(raw))
				return fmt.Sprintf("%t\n", got)
			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

func parseConstraint(args []datadriven.CmdArg) PartitionConstraint {
	c := PartitionConstraint{}
	for _, arg := range args {
		values := map[string]struct{}{}
		for _, v := range arg.Vals {
			values[v] = struct{}{}
		}
		c[arg.Key] = values
	}
	return c
}

func formatCanonical(canonical map[string]*string) string {
	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	keys := make([]string, 0, len(canonical))
	for k := range canonical {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := canonical[k]
		if v == nil {
			fmt.Fprintf(w, "%s: NULL\n", k)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", k, *v)
	}
	w.Flush()
	return sb.String()
}
