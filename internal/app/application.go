package app

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	chatsvc "github.com/Van103/fun-charity-sub001/internal/app/services/chat"
	donationsvc "github.com/Van103/fun-charity-sub001/internal/app/services/donations"
	"github.com/Van103/fun-charity-sub001/internal/app/services/kyc"
	"github.com/Van103/fun-charity-sub001/internal/app/services/notifier"
	tokensvc "github.com/Van103/fun-charity-sub001/internal/app/services/token"
	walletsvc "github.com/Van103/fun-charity-sub001/internal/app/services/wallet"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/memory"
	"github.com/Van103/fun-charity-sub001/internal/app/system"
	"github.com/Van103/fun-charity-sub001/internal/i18n"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Friendships storage.FriendshipStore
	Chat        storage.ChatStore
	Donations   storage.DonationStore
	Preferences storage.PreferenceStore
}

// Options carry the optional external dependencies. Components whose
// configuration is absent stay nil and the HTTP layer reports them as
// unconfigured.
type Options struct {
	// Channel token issuance.
	TokenAppID string
	TokenKey   []byte

	// KYC document URL signing.
	KYCBaseURL string
	KYCSecret  []byte
	KYCAdmins  []string

	// Chain access for wallet balance snapshots.
	Chain walletsvc.BalanceReader

	// Translation catalogs, one <lang>.yaml per language.
	Translations fs.FS

	// Donation reconciliation.
	ReconcileSchedule string
	DonationMaxAge    time.Duration

	// Alerter receives friend-request alerts from the notifier.
	Alerter notifier.Alerter
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus           *feed.Bus
	Notifications *notifier.Hub
	Chat          *chatsvc.Service
	Donations     *donationsvc.Service
	Preferences   storage.PreferenceStore
	Tokens        *tokensvc.Service
	KYC           *kyc.Service
	Catalog       *i18n.Catalog
	Chain         walletsvc.BalanceReader
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Friendships == nil {
		stores.Friendships = mem
	}
	if stores.Chat == nil {
		stores.Chat = mem
	}
	if stores.Donations == nil {
		stores.Donations = mem
	}
	if stores.Preferences == nil {
		stores.Preferences = mem
	}

	manager := system.NewManager()
	bus := feed.NewBus(0)

	var hubOpts []notifier.Option
	if opts.Alerter != nil {
		hubOpts = append(hubOpts, notifier.WithAlerter(opts.Alerter))
	}
	hub := notifier.NewHub(bus, stores.Friendships, log, hubOpts...)
	chatService := chatsvc.New(stores.Chat, log)
	donationService := donationsvc.New(stores.Donations, bus, log)

	app := &Application{
		manager:       manager,
		log:           log,
		Bus:           bus,
		Notifications: hub,
		Chat:          chatService,
		Donations:     donationService,
		Preferences:   stores.Preferences,
		Chain:         opts.Chain,
	}

	if opts.TokenAppID != "" && len(opts.TokenKey) > 0 {
		tokens, err := tokensvc.New(opts.TokenAppID, opts.TokenKey, log)
		if err != nil {
			return nil, fmt.Errorf("configure token service: %w", err)
		}
		app.Tokens = tokens
	} else {
		log.Warn("channel token credentials not set; token issuance disabled")
	}

	if opts.KYCBaseURL != "" && len(opts.KYCSecret) > 0 {
		signer, err := kyc.New(opts.KYCBaseURL, opts.KYCSecret, kyc.NewAdminList(opts.KYCAdmins...), log)
		if err != nil {
			return nil, fmt.Errorf("configure kyc signer: %w", err)
		}
		app.KYC = signer
	} else {
		log.Warn("kyc signing secret not set; document url signing disabled")
	}

	if opts.Translations != nil {
		catalog, err := i18n.NewFromFS(opts.Translations, log)
		if err != nil {
			return nil, fmt.Errorf("configure i18n catalog: %w", err)
		}
		app.Catalog = catalog
	}

	reconciler, err := donationsvc.NewReconciler(donationService, opts.ReconcileSchedule, opts.DonationMaxAge, log)
	if err != nil {
		return nil, fmt.Errorf("configure donation reconciler: %w", err)
	}
	if err := manager.Register(reconciler); err != nil {
		return nil, fmt.Errorf("register %s: %w", reconciler.Name(), err)
	}

	return app, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
