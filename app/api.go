package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: routes(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			log.Sugar().Infof("Listening on %s", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func routes(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("repowatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/users", func(r chi.Router) {
			r.Post("/", ctrl.onboardUser)
			r.Get("/{user_id}", ctrl.viewUser)
			r.Post("/{user_id}/tokens", ctrl.registerToken)
			r.Get("/{user_id}/subscriptions", ctrl.listSubscriptions)
			r.Post("/{user_id}/subscriptions", ctrl.subscribe)
			r.Delete("/{user_id}/subscriptions/{subscription_id}", ctrl.unsubscribe)
		})
	})
	r.Get("/verify/{nonce}", ctrl.verifyNotifier)

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail picks the status for an error coming out of the service.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, lib.ErrUnsupportedPlatform),
		errors.Is(err, lib.ErrUnsupportedService),
		errors.Is(err, lib.ErrInvalidToken),
		errors.Is(err, lib.ErrNoVerifiedNotifier),
		errors.Is(err, lib.ErrSubscriptionRejected):
		ctrl.reject(w, http.StatusBadRequest, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) onboardUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := r.FormValue("username")
	platform := r.FormValue("platform")
	identifier := r.FormValue("identifier")

	if username == "" {
		ctrl.reject(w, 400, errors.New("Username is required"))
		return
	}
	if platform == "" {
		ctrl.reject(w, 400, errors.New("Platform is required"))
		return
	}

	user, err := ctrl.svc.OnboardUser(ctx, username, platform, identifier)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, UserView{}.From(*user))
}

func (ctrl *controller) viewUser(w http.ResponseWriter, r *http.Request) {
	user, err := ctrl.svc.FindUser(r.Context(), parseInt(chi.URLParam(r, "user_id")))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, UserView{}.From(*user))
}

func (ctrl *controller) registerToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))

	token, err := ctrl.svc.RegisterToken(ctx, userID, r.FormValue("service"), r.FormValue("token"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, TokenView{}.From(*token))
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := ctrl.svc.ListSubscriptions(r.Context(), parseInt(chi.URLParam(r, "user_id")))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	req := lib.SubscriptionRequest{
		Service:  r.FormValue("service"),
		Method:   r.FormValue("method"),
		Query:    r.FormValue("query"),
		Describe: r.FormValue("describe"),
		TokenID:  parseInt(r.FormValue("token_id")),
	}
	if req.Query == "" {
		ctrl.reject(w, 400, errors.New("Query is required"))
		return
	}

	sub, outcome, err := ctrl.svc.CreateSubscription(ctx, userID, req)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, map[string]any{
		"subscription": SubscriptionView{}.From(*sub),
		"outcome":      outcome.String(),
	})
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	subscriptionID := parseInt(chi.URLParam(r, "subscription_id"))

	if err := ctrl.svc.DeleteSubscription(ctx, userID, subscriptionID); err != nil {
		ctrl.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) verifyNotifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nonce := chi.URLParam(r, "nonce")

	ok, err := ctrl.svc.VerifyNotifier(ctx, nonce)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"verified": ok})
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
