package intel

import (
	"context"
	"regexp"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// Service is the cloud intelligence pass. It is a no-op unless a
// valid, non-expired token is present, and it never fails the scan.
type Service struct {
	client *Client
	tokens *TokenStore
	cache  *SignatureCache
	log    *logger.Logger
}

// NewService wires the cloud client against its token and signature
// stores.
func NewService(client *Client, tokens *TokenStore, cache *SignatureCache, log *logger.Logger) *Service {
	return &Service{client: client, tokens: tokens, cache: cache, log: log}
}

// Cloud pass status values carried on reports.
const (
	StatusEnriched        = "enriched"
	StatusDegraded        = "degraded"
	StatusUnauthenticated = "skipped, unauthenticated"
)

// Enrichment is everything the cloud contributes to one scan.
type Enrichment struct {
	// Rules are remote signatures, applied by the engine with the same
	// mechanics as the built-in pattern table.
	Rules []scan.Rule
	// Findings holds the threat-lookup match, if any.
	Findings []scan.Finding
	// Skips records why the cloud phase (or part of it) did not run.
	Skips []scan.SkipNote
	// Status summarizes the pass: enriched, degraded, or skipped.
	Status string
}

// Enrich looks up the tree's fingerprint and collects remote
// signatures. Any failure degrades to a skip note.
func (s *Service) Enrich(ctx context.Context, root string) Enrichment {
	var enr Enrichment

	token := s.tokens.Load()
	if token == "" {
		enr.Status = StatusUnauthenticated
		enr.Skips = append(enr.Skips, scan.SkipNote{Subject: "cloud", Reason: StatusUnauthenticated})
		return enr
	}
	s.client.SetToken(token)

	if f, skip := s.lookupThreat(ctx, root); skip != nil {
		enr.Skips = append(enr.Skips, *skip)
	} else if f != nil {
		enr.Findings = append(enr.Findings, *f)
	}

	rules, skip := s.signatureRules(ctx)
	if skip != nil {
		enr.Skips = append(enr.Skips, *skip)
	}
	enr.Rules = rules

	enr.Status = StatusEnriched
	if len(enr.Skips) > 0 {
		enr.Status = StatusDegraded
	}
	return enr
}

func (s *Service) lookupThreat(ctx context.Context, root string) (*scan.Finding, *scan.SkipNote) {
	hash, err := Fingerprint(root)
	if err != nil {
		s.log.WithError(err).Warn("fingerprinting failed, cloud lookup skipped")
		return nil, &scan.SkipNote{Subject: "cloud threat lookup", Reason: "skipped: " + err.Error()}
	}
	match, err := s.client.LookupThreat(ctx, hash)
	if err != nil {
		s.log.WithError(err).Warn("threat lookup failed, cloud phase degraded")
		return nil, &scan.SkipNote{Subject: "cloud threat lookup", Reason: "skipped: " + err.Error()}
	}
	if match == nil {
		return nil, nil
	}
	return &scan.Finding{
		Phase:    scan.PhaseCloud,
		Rule:     "CLOUD-THREAT",
		Severity: scan.SeverityCritical,
		File:     ".",
		Snippet:  "known malicious fingerprint: " + match.Name + " - " + match.Description,
		Weight:   scan.WeightCloudThreat,
	}, nil
}

// signatureRules returns the community signature set as pattern
// rules, from the local cache when fresh, the API otherwise.
func (s *Service) signatureRules(ctx context.Context) ([]scan.Rule, *scan.SkipNote) {
	sigs, ok := s.cache.Load()
	if !ok {
		var err error
		sigs, err = s.client.FetchSignatures(ctx)
		if err != nil {
			s.log.WithError(err).Warn("signature fetch failed, cloud signatures skipped")
			return nil, &scan.SkipNote{Subject: "cloud signatures", Reason: "skipped: " + err.Error()}
		}
		if err := s.cache.Save(sigs); err != nil {
			s.log.WithError(err).Warn("signature cache write failed")
		}
	}

	var rules []scan.Rule
	for _, sig := range sigs {
		re, err := regexp.Compile(sig.Pattern)
		if err != nil {
			s.log.Warnf("ignoring signature %s with invalid pattern", sig.ID)
			continue
		}
		weight := sig.Weight
		if weight <= 0 {
			weight = scan.Weight(scan.PhaseCloud)
		}
		rules = append(rules, scan.Rule{
			ID:          "SIG-" + sig.ID,
			Phase:       scan.PhaseCloud,
			Severity:    severityFrom(sig.Severity),
			Pattern:     re,
			Description: sig.Description,
			Weight:      weight,
		})
	}
	return rules, nil
}

func severityFrom(s string) scan.Severity {
	switch s {
	case "critical":
		return scan.SeverityCritical
	case "high":
		return scan.SeverityHigh
	case "medium":
		return scan.SeverityMedium
	default:
		return scan.SeverityLow
	}
}
