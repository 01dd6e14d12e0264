// Command validate checks the station lists under the data directory against
// the bundled inventory: every listed code must exist, no code may be in both
// lists, and whitelisted stations should still be operating.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -inventory data/estacoes.json \
//	  -data-dir data
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/station"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	inventoryPath := flag.String("inventory", "data/estacoes.json", "path to the station inventory JSON")
	dataDir := flag.String("data-dir", "data", "directory holding whitelist.json and blacklist.json")
	flag.Parse()

	if code := run(*inventoryPath, *dataDir, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(inventoryPath, dataDir string, out io.Writer) int {
	fmt.Fprintln(out, "=== Station List Validation ===")
	fmt.Fprintln(out)

	records, err := station.NewInventory(inventoryPath).Load(context.Background())
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}
	whitelist, blacklist, err := station.NewLists(dataDir).Load()
	if err != nil {
		fmt.Fprintf(out, "FATAL: load station lists: %v\n", err)
		return 1
	}

	index := make(map[string]domain.InventoryRecord, len(records))
	for _, r := range records {
		index[string(r.Code)] = r
	}

	phases := []*phase{
		checkKnown("Phase 1: Whitelist codes in inventory", whitelist, index),
		checkKnown("Phase 2: Blacklist codes in inventory", blacklist, index),
		checkOverlap(whitelist, blacklist),
		checkOperating(whitelist, index),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Stations: %d inventory, %d whitelist, %d blacklist\n", len(records), len(whitelist), len(blacklist))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func checkKnown(name string, codes station.CodeSet, index map[string]domain.InventoryRecord) *phase {
	p := &phase{name: name}
	for _, code := range sorted(codes) {
		if _, ok := index[code]; !ok {
			p.errorf("code %s not found in inventory", code)
		}
	}
	return p
}

func checkOverlap(whitelist, blacklist station.CodeSet) *phase {
	p := &phase{name: "Phase 3: Lists are disjoint"}
	for _, code := range sorted(whitelist) {
		if blacklist.Has(code) {
			p.errorf("code %s is in both lists (blacklist wins)", code)
		}
	}
	return p
}

func checkOperating(whitelist station.CodeSet, index map[string]domain.InventoryRecord) *phase {
	p := &phase{name: "Phase 4: Whitelisted stations operating"}
	for _, code := range sorted(whitelist) {
		r, ok := index[code]
		if ok && !r.IsOperating() {
			p.errorf("code %s (%s, %s) is not operating", code, r.Name, r.Municipality)
		}
	}
	return p
}

func sorted(codes station.CodeSet) []string {
	out := make([]string, 0, len(codes))
	for code := range codes {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}
