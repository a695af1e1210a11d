package service

import (
	"context"
	"log"
	"time"
)

// RunProofDeadlineMonitor periodically expires committed proofs whose reveal
// deadline has passed. Blocks until ctx is cancelled.
func (s *Service) RunProofDeadlineMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepProofDeadlines(ctx)
		}
	}
}

func (s *Service) sweepProofDeadlines(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	overdue, err := s.store.ListOverdueProofs(sweepCtx, s.now(), 100)
	if err != nil {
		log.Printf("WARN: proof deadline sweep failed: %v", err)
		return
	}

	for _, proof := range overdue {
		expired, err := s.store.MarkProofExpired(sweepCtx, proof.ProofID)
		if err != nil {
			log.Printf("WARN: failed to expire proof %s: %v", proof.ProofID, err)
			continue
		}
		if expired {
			log.Printf("Proof %s expired: reveal deadline %s passed", proof.ProofID, proof.Deadline.UTC().Format(time.RFC3339))
		}
	}
}
