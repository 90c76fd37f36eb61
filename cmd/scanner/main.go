package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/raccoonscan/raccoonscan-portal/pkg/scanner"
)

func main() {
	var (
		target     = flag.String("target", "", "Target host:port to scan")
		batch      = flag.String("batch", "", "CSV file with targets for batch scanning")
		batchShort = flag.String("b", "", "Short form of -batch")
		timeout    = flag.Duration("timeout", 10*time.Second, "Connection timeout")
		workers    = flag.Int("workers", 10, "Parallel handshakes per batch")
		iterations = flag.Int("iterations", 10, "Paired handshakes in the first pass")
		seed       = flag.Int64("seed", 0, "Random seed for reproducible runs (0 = random)")
		jsonOutput = flag.Bool("json", false, "Output as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
		summary    = flag.Bool("summary", false, "Show summary only for batch scans")
	)

	flag.Parse()

	// Handle short form of batch
	batchFile := *batch
	if batchFile == "" && *batchShort != "" {
		batchFile = *batchShort
	}

	// Validate inputs
	if *target == "" && batchFile == "" {
		fmt.Fprintf(os.Stderr, "Error: either -target or -batch is required\n")
		flag.Usage()
		os.Exit(1)
	}

	if *target != "" && batchFile != "" {
		fmt.Fprintf(os.Stderr, "Error: cannot use both -target and -batch\n")
		flag.Usage()
		os.Exit(1)
	}

	config := scanner.Config{
		Timeout:    *timeout,
		Workers:    *workers,
		Iterations: *iterations,
		Seed:       *seed,
		Verbose:    *verbose,
	}

	s := scanner.New(config)

	// Single target mode
	if *target != "" {
		fmt.Fprintf(os.Stderr, "Scanning %s...\n", *target)
		result, err := s.ScanTarget(*target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
			os.Exit(1)
		}

		if *jsonOutput {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				log.Fatalf("Error encoding JSON output: %v", err)
			}
		} else {
			printTextResult(result)
		}
		return
	}

	// Batch mode
	if err := runBatchScan(s, batchFile, *jsonOutput, *summary); err != nil {
		fmt.Fprintf(os.Stderr, "Batch scan failed: %v\n", err)
		os.Exit(1)
	}
}

func printTextResult(r *scanner.Result) {
	fmt.Printf("\nDirect Raccoon Scan Report\n")
	fmt.Printf("==========================\n\n")

	fmt.Printf("Target: %s\n", r.Target)
	fmt.Printf("IP: %s\n", r.IP)
	fmt.Printf("Port: %s\n", r.Port)
	fmt.Printf("Service: %s (%s)\n", r.ServiceType, r.ConnectionType)
	fmt.Printf("Scan Time: %s\n", r.ScanTime.Format(time.RFC3339))
	fmt.Printf("Duration: %s\n", r.Duration)

	symbol := map[string]string{
		"TRUE":           "🔴",
		"FALSE":          "✅",
		"ERROR":          "❌",
		"COULD_NOT_TEST": "➖",
	}[r.Verdict]
	fmt.Printf("\n%s Verdict: %s\n", symbol, r.Verdict)

	fmt.Printf("\n🔐 Supported Protocols:\n")
	for _, p := range []struct {
		name    string
		enabled bool
	}{
		{"SSL 3.0", r.Report.SupportsSSL30},
		{"TLS 1.0", r.Report.SupportsTLS10},
		{"TLS 1.1", r.Report.SupportsTLS11},
		{"TLS 1.2", r.Report.SupportsTLS12},
	} {
		if p.enabled {
			fmt.Printf("  ✅ %s\n", p.name)
		}
	}
	if !r.Report.SupportsDH {
		fmt.Printf("\n  No finite-field DH cipher suites offered; target is not exposed.\n")
	}

	if r.Certificate != nil {
		fmt.Printf("\n📜 Certificate:\n")
		fmt.Printf("  Subject: %s\n", r.Certificate.Subject)
		fmt.Printf("  Issuer: %s\n", r.Certificate.Issuer)
		fmt.Printf("  Valid: %s to %s\n",
			r.Certificate.NotBefore.Format("2006-01-02"),
			r.Certificate.NotAfter.Format("2006-01-02"))
		fmt.Printf("  Key: %s %d bits\n", r.Certificate.KeyType, r.Certificate.KeySize)
	}

	if len(r.Combinations) > 0 {
		fmt.Printf("\n🧪 Tested Combinations:\n")
		fmt.Printf("  %-8s %-40s %-12s %-9s %-8s %s\n",
			"VERSION", "SUITE", "WORKFLOW", "BASELINE", "SAMPLES", "STATUS")
		for _, c := range r.Combinations {
			baseline := "ok"
			if !c.HandshakeWorking {
				baseline = "failing"
			}
			status := c.Status
			if c.Escalated {
				status += " (escalated)"
			}
			fmt.Printf("  %-8s %-40s %-12s %-9s %-8d %s\n",
				c.Version, c.SuiteName, c.Workflow, baseline, c.Samples, status)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Printf("\n❌ Errors:\n")
		for _, err := range r.Errors {
			fmt.Printf("  - %s\n", err)
		}
	}

	fmt.Println()
}

// BatchTarget represents a target from the CSV file
type BatchTarget struct {
	Target   string
	Comments string
}

// runBatchScan processes a CSV file with multiple targets
func runBatchScan(s *scanner.Scanner, filename string, jsonOutput, summaryOnly bool) error {
	file, err := os.Open(filename) // #nosec G304 - CLI tool, user-provided filename is expected
	if err != nil {
		return fmt.Errorf("cannot open batch file: %w", err)
	}
	defer file.Close()

	targets, err := parseBatchFile(file)
	if err != nil {
		return fmt.Errorf("cannot parse batch file: %w", err)
	}

	if len(targets) == 0 {
		return fmt.Errorf("no targets found in batch file")
	}

	fmt.Fprintf(os.Stderr, "Starting batch scan of %d targets...\n", len(targets))

	results := make([]*scanner.Result, 0, len(targets))
	successCount := 0
	failCount := 0

	for i, target := range targets {
		fmt.Fprintf(os.Stderr, "[%d/%d] Scanning %s...", i+1, len(targets), target.Target)

		result, err := s.ScanTarget(target.Target)
		if err != nil {
			fmt.Fprintf(os.Stderr, " FAILED: %v\n", err)
			failCount++
			// Create a failed result entry
			result = &scanner.Result{
				Target:  target.Target,
				Verdict: "COULD_NOT_TEST",
				Errors:  []string{err.Error()},
			}
		} else {
			fmt.Fprintf(os.Stderr, " Verdict: %s\n", result.Verdict)
			successCount++
		}

		results = append(results, result)
	}

	// Output results
	if summaryOnly {
		printBatchSummary(results, successCount, failCount)
	} else if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		batchResult := map[string]interface{}{
			"scan_count": len(targets),
			"success":    successCount,
			"failed":     failCount,
			"results":    results,
		}
		if err := encoder.Encode(batchResult); err != nil {
			return fmt.Errorf("error encoding JSON output: %w", err)
		}
	} else {
		// Print full text results for each scan
		for _, result := range results {
			printTextResult(result)
			fmt.Println(strings.Repeat("-", 80))
		}
		printBatchSummary(results, successCount, failCount)
	}

	return nil
}

// parseBatchFile reads and parses the CSV file
func parseBatchFile(file *os.File) ([]BatchTarget, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	var targets []BatchTarget
	hasHeader := false

	// Check if first row looks like a header
	if len(records[0]) > 0 && strings.ToLower(records[0][0]) == "target" {
		hasHeader = true
	}

	startIdx := 0
	if hasHeader {
		startIdx = 1
	}

	for i := startIdx; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue // Skip empty lines
		}

		target := BatchTarget{
			Target: record[0],
		}
		if len(record) > 1 {
			target.Comments = record[1]
		}

		targets = append(targets, target)
	}

	return targets, nil
}

// printBatchSummary prints a summary of the batch scan results
func printBatchSummary(results []*scanner.Result, successCount, failCount int) {
	fmt.Printf("\n📊 Batch Scan Summary\n")
	fmt.Printf("====================\n")
	fmt.Printf("Total Scans: %d\n", len(results))
	fmt.Printf("✅ Successful: %d\n", successCount)
	fmt.Printf("❌ Failed: %d\n", failCount)

	// Verdict distribution
	verdictCount := make(map[string]int)
	for _, result := range results {
		verdictCount[result.Verdict]++
	}

	fmt.Printf("\n📈 Verdict Distribution:\n")
	for _, verdict := range []string{"TRUE", "FALSE", "ERROR", "COULD_NOT_TEST"} {
		if count, ok := verdictCount[verdict]; ok {
			fmt.Printf("  %s: %d\n", verdict, count)
		}
	}

	// List of vulnerable targets
	vulnerable := 0
	for _, result := range results {
		if result.Verdict == "TRUE" {
			if vulnerable == 0 {
				fmt.Printf("\n🔴 Vulnerable Targets:\n")
			}
			vulnerable++
			fmt.Printf("  - %s\n", result.Target)
		}
	}

	// List of failed scans
	if failCount > 0 {
		fmt.Printf("\n❌ Failed Scans:\n")
		for _, result := range results {
			if len(result.Errors) > 0 {
				fmt.Printf("  - %s: %s\n", result.Target, result.Errors[0])
			}
		}
	}
}
