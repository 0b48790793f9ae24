package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/classhub/pkg/activity"
	"github.com/platinummonkey/classhub/pkg/contextkeys"
	"github.com/platinummonkey/classhub/pkg/httputil"
	"github.com/platinummonkey/classhub/pkg/orgs"
)

// APIQuotaMiddleware meters API calls against the bound organization's
// api_calls quota. The check and the increment are one atomic operation in
// the registry, so bursts cannot overshoot the ceiling. Requests without an
// organization context pass through unmetered.
func APIQuotaMiddleware(svc orgs.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org, ok := OrgFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if err := svc.TryIncrementUsage(org.ID, orgs.ResourceAPICalls, 1); err != nil {
				if orgs.IsQuotaExceeded(err) {
					quotaErr := err.(*orgs.QuotaExceededError)
					httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
						"error":   "quota_exceeded",
						"kind":    string(quotaErr.Kind),
						"current": quotaErr.Current,
						"limit":   quotaErr.Limit,
					})
					return
				}
				httputil.WriteError(w, http.StatusInternalServerError, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActivityMiddleware records member activity for the bound organization so
// usage snapshots can report recently-active member counts. Recording is
// fire-and-forget; a tracker failure never affects the request.
func ActivityMiddleware(tracker *activity.Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org, orgOK := OrgFromContext(r.Context())
			userID, userOK := contextkeys.GetUserID(r.Context())
			if orgOK && userOK {
				// Detached from the request context so cancellation after the
				// response does not lose the touch
				go tracker.Touch(context.Background(), org.ID, userID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
