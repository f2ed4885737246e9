// Package app assembles the domain services and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpress/inkpress/internal/app/services/chapters"
	"github.com/inkpress/inkpress/internal/app/services/progress"
	"github.com/inkpress/inkpress/internal/app/services/publisher"
	"github.com/inkpress/inkpress/internal/app/services/social"
	"github.com/inkpress/inkpress/internal/app/services/stories"
	"github.com/inkpress/inkpress/internal/app/services/users"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/app/storage/memory"
	"github.com/inkpress/inkpress/internal/app/system"
	"github.com/inkpress/inkpress/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users    storage.UserStore
	Stories  storage.StoryStore
	Chapters storage.ChapterStore
	Social   storage.SocialStore
	Progress storage.ProgressStore
}

// Options carries the settings the services need beyond their stores.
type Options struct {
	TokenSecret        []byte
	SessionTTL         time.Duration
	PublishSchedule    string
	PublishBatchCap    int
	PublishPassTimeout time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users     *users.Service
	Stories   *stories.Service
	Chapters  *chapters.Service
	Social    *social.Service
	Progress  *progress.Service
	Publisher *publisher.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Stories == nil {
		stores.Stories = mem
	}
	if stores.Chapters == nil {
		stores.Chapters = mem
	}
	if stores.Social == nil {
		stores.Social = mem
	}
	if stores.Progress == nil {
		stores.Progress = mem
	}

	manager := system.NewManager()

	var userOpts []users.Option
	if opts.SessionTTL > 0 {
		userOpts = append(userOpts, users.WithSessionTTL(opts.SessionTTL))
	}
	userService := users.New(stores.Users, opts.TokenSecret, log, userOpts...)
	storyService := stories.New(stores.Stories, log)
	chapterService := chapters.New(stores.Chapters, stores.Stories, log)
	socialService := social.New(stores.Social, stores.Chapters, stores.Stories, log)
	progressService := progress.New(stores.Progress, stores.Chapters, log)

	var publisherOpts []publisher.Option
	if opts.PublishBatchCap > 0 {
		publisherOpts = append(publisherOpts, publisher.WithBatchCap(opts.PublishBatchCap))
	}
	if opts.PublishPassTimeout > 0 {
		publisherOpts = append(publisherOpts, publisher.WithPassTimeout(opts.PublishPassTimeout))
	}
	publishService := publisher.New(stores.Chapters, stores.Stories, log, publisherOpts...)

	for _, name := range []string{"users", "stories", "chapters", "social", "progress"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}

	runner := publisher.NewRunner(publishService, log)
	if opts.PublishSchedule != "" {
		if err := runner.WithSchedule(opts.PublishSchedule); err != nil {
			return nil, fmt.Errorf("configure publish schedule: %w", err)
		}
	}
	if err := manager.Register(runner); err != nil {
		return nil, fmt.Errorf("register %s: %w", runner.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Users:     userService,
		Stories:   storyService,
		Chapters:  chapterService,
		Social:    socialService,
		Progress:  progressService,
		Publisher: publishService,
	}, nil
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
