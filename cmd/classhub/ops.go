package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/classhub/pkg/httputil"
	"github.com/platinummonkey/classhub/pkg/orgs"
	"github.com/platinummonkey/classhub/pkg/provision"
)

// opsHandlers exposes operator-only provisioning controls on the ops port.
// These are not tenant-facing APIs; the ops port is expected to be reachable
// only from inside the deployment.
type opsHandlers struct {
	provisioner *provision.Provisioner
	log         *logrus.Logger
}

func registerOpsRoutes(router *mux.Router, provisioner *provision.Provisioner, log *logrus.Logger) {
	h := &opsHandlers{provisioner: provisioner, log: log}
	router.HandleFunc("/admin/orgs/{id}/provision", h.provisionOrg).Methods(http.MethodPost)
	router.HandleFunc("/admin/orgs/{id}/deprovision", h.deprovisionOrg).Methods(http.MethodPost)
}

type provisionRequest struct {
	AdminUserID int64  `json:"admin_user_id"`
	AdminEmail  string `json:"admin_email"`
}

func (h *opsHandlers) provisionOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.provisioner.Provision(r.Context(), orgID, provision.AdminInfo{
		UserID: req.AdminUserID,
		Email:  req.AdminEmail,
	})
	if err != nil {
		if orgs.IsNotFound(err) {
			httputil.WriteError(w, http.StatusNotFound, err)
			return
		}
		h.log.Errorf("Provisioning org %d failed: %v", orgID, err)
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *opsHandlers) deprovisionOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid organization id")
		return
	}
	permanent := r.URL.Query().Get("permanent") == "true"

	if err := h.provisioner.Deprovision(r.Context(), orgID, permanent); err != nil {
		if orgs.IsNotFound(err) {
			httputil.WriteError(w, http.StatusNotFound, err)
			return
		}
		h.log.Errorf("Deprovisioning org %d failed: %v", orgID, err)
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"org_id":    orgID,
		"permanent": permanent,
	})
}
