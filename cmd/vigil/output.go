package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/native-host/domaincheck"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func printBanner(w io.Writer) {
	fig := figure.NewFigure("VIGIL", "doom", true)
	fmt.Fprint(w, fig.String())
	_, _ = color.New(color.FgCyan).Fprintln(w, "phishing risk scoring")
}

func labelColor(label analyzer.RiskLabel) *color.Color {
	switch label {
	case analyzer.RiskHigh:
		return color.New(color.FgRed, color.Bold)
	case analyzer.RiskMedium:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen)
	}
}

func renderRecord(w io.Writer, rec *analyzer.ScanRecord) {
	_, _ = labelColor(rec.RiskLabel).Fprintf(w, "%s risk (%d/100)\n", rec.RiskLabel, rec.RiskScore)
	fmt.Fprintf(w, "  url:        %s\n", rec.URL)
	fmt.Fprintf(w, "  hostname:   %s\n", rec.Hostname)
	if rec.RegistrableDomain != "" && rec.RegistrableDomain != rec.Hostname {
		fmt.Fprintf(w, "  domain:     %s\n", rec.RegistrableDomain)
	}
	fmt.Fprintf(w, "  https:      %s\n", yesNo(rec.IsSecure))
	fmt.Fprintf(w, "  entropy:    %.2f\n", rec.Entropy)
	fmt.Fprintf(w, "  scripts:    %d (%d trackers)\n", rec.ScriptCount, rec.TrackerEstimate)
	fmt.Fprintf(w, "  redirects:  %d\n", rec.RedirectCount)
	if len(rec.SimilarMatches) > 0 {
		fmt.Fprintln(w, "  similar to:")
		printHits(w, rec.SimilarMatches)
	}
	fmt.Fprintln(w, "  notes:")
	for _, n := range rec.Notes {
		fmt.Fprintf(w, "    - %s\n", n)
	}
}

func printHits(w io.Writer, hits []analyzer.SimilarityHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "    no similar reference domains")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "    %-28s distance %d  [%s]\n", h.Domain, h.EditDistance, h.Group)
	}
}

func printVerdict(w io.Writer, v domaincheck.Verdict) {
	if v.OK {
		_, _ = color.New(color.FgGreen).Fprintln(w, "no lookalike indicators")
	} else {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(w, "flagged: %s\n", strings.Join(v.Reasons, ", "))
	}
	if v.ETLD1 != "" {
		fmt.Fprintf(w, "  registrable domain: %s\n", v.ETLD1)
	}
	if len(v.Lookalikes) > 0 {
		fmt.Fprintf(w, "  resembles: %s\n", strings.Join(v.Lookalikes, ", "))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
