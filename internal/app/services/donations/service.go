// Package donations manages donation records, emits their change events, and
// serves the honor board ranking.
package donations

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Service manages donations.
type Service struct {
	store storage.DonationStore
	pub   feed.Publisher
	log   *logger.Logger
}

// New constructs a donation service. pub may be nil when no change feed is
// wired (batch tooling).
func New(store storage.DonationStore, pub feed.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("donations")
	}
	return &Service{store: store, pub: pub, log: log}
}

// Record registers a pending donation.
func (s *Service) Record(ctx context.Context, donorID, campaignID, amount, currency string) (donation.Donation, error) {
	donorID = strings.TrimSpace(donorID)
	campaignID = strings.TrimSpace(campaignID)
	amount = strings.TrimSpace(amount)

	if donorID == "" {
		return donation.Donation{}, fmt.Errorf("donor_id is required")
	}
	if campaignID == "" {
		return donation.Donation{}, fmt.Errorf("campaign_id is required")
	}
	value, ok := new(big.Float).SetString(amount)
	if !ok || value.Sign() <= 0 {
		return donation.Donation{}, fmt.Errorf("amount must be a positive decimal")
	}
	if currency == "" {
		currency = "BNB"
	}

	d, err := s.store.CreateDonation(ctx, donation.Donation{
		DonorID:    donorID,
		CampaignID: campaignID,
		Amount:     amount,
		Currency:   currency,
		Status:     donation.StatusPending,
	})
	if err != nil {
		return donation.Donation{}, err
	}

	s.publish(feed.Event{
		Table:   feed.TableDonations,
		Kind:    feed.KindInsert,
		ActorID: d.DonorID,
		Status:  string(d.Status),
	})
	s.log.WithField("donation_id", d.ID).
		WithField("campaign_id", campaignID).
		Info("donation recorded")
	return d, nil
}

// Complete marks a pending donation completed and emits the status
// transition on the change feed.
func (s *Service) Complete(ctx context.Context, id, txHash string) (donation.Donation, error) {
	d, err := s.store.GetDonation(ctx, id)
	if err != nil {
		return donation.Donation{}, err
	}
	if d.Status == donation.StatusCompleted {
		return d, nil
	}
	if d.Status != donation.StatusPending {
		return donation.Donation{}, fmt.Errorf("donation %s is %s, not pending", id, d.Status)
	}

	old := d.Status
	d.Status = donation.StatusCompleted
	d.TxHash = strings.TrimSpace(txHash)
	d, err = s.store.UpdateDonation(ctx, d)
	if err != nil {
		return donation.Donation{}, err
	}

	s.publish(feed.Event{
		Table:     feed.TableDonations,
		Kind:      feed.KindUpdate,
		ActorID:   d.DonorID,
		OldStatus: string(old),
		Status:    string(d.Status),
	})
	s.log.WithField("donation_id", d.ID).
		WithField("tx_hash", d.TxHash).
		Info("donation completed")
	return d, nil
}

// Expire marks a pending donation expired. Expiry is internal housekeeping
// and deliberately emits no feed event.
func (s *Service) Expire(ctx context.Context, id string) (donation.Donation, error) {
	d, err := s.store.GetDonation(ctx, id)
	if err != nil {
		return donation.Donation{}, err
	}
	if d.Status != donation.StatusPending {
		return d, nil
	}
	d.Status = donation.StatusExpired
	return s.store.UpdateDonation(ctx, d)
}

// ListByDonor returns a donor's donations.
func (s *Service) ListByDonor(ctx context.Context, donorID string) ([]donation.Donation, error) {
	return s.store.ListDonations(ctx, donorID)
}

// HonorBoard returns the top donors by completed amount.
func (s *Service) HonorBoard(ctx context.Context, limit int) ([]donation.HonorBoardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.TopDonors(ctx, limit)
}

func (s *Service) publish(ev feed.Event) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ev)
}
