package walletgo

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type balanceJSONResp struct {
	Balance decimal.Decimal `json:"balance"`
}

type payJSONReq struct {
	PayerID string          `json:"payerId"`
	PayeeID string          `json:"payeeId"`
	Amount  decimal.Decimal `json:"amount"`
}

type creditJSONReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func NewHTTPHandler(svc Service, rpt *Reporter, log *zerolog.Logger) http.Handler {
	hndlr := &httpHandler{
		Svc: svc,
		Rpt: rpt,
		Log: log,
	}
	mux := chi.NewMux()
	mux.NotFound(HTTPNotFound)
	mux.Route("/transactions", func(r chi.Router) {
		r.Post("/", hndlr.Pay)
		r.Get("/", hndlr.Transactions)
	})
	mux.Route("/accounts", func(r chi.Router) {
		r.Post("/", hndlr.CreateAccount)
		r.Get("/", hndlr.ListAccounts)
		r.Route("/{acctID:[0-9]+}", func(rr chi.Router) {
			rr.Get("/balance", hndlr.Balance)
			rr.Post("/credit", hndlr.Credit)
		})
	})
	mux.Get("/reports", hndlr.Report)

	return mux
}

type httpHandler struct {
	Svc Service
	Rpt *Reporter
	Log *zerolog.Logger
}

func (h *httpHandler) Pay(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", "pay").Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	var jreq payJSONReq
	if err = json.Unmarshal(buf, &jreq); err != nil {
		h.Log.Err(err).Str("method", "pay").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	payerID, err := snowflake.ParseString(jreq.PayerID)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"payerId": "invalid format"}})
		return
	}
	payeeID, err := snowflake.ParseString(jreq.PayeeID)
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"payeeId": "invalid format"}})
		return
	}
	req := PayReq{
		PayerID: payerID,
		PayeeID: payeeID,
		Amount:  jreq.Amount,
	}
	txn, err := h.Svc.Pay(r.Context(), req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(txn); err != nil {
		h.Log.Err(err).Str("method", "pay").Msg("error encoding response")
	}
}

func (h *httpHandler) Credit(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", "credit").Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	var jreq creditJSONReq
	if err = json.Unmarshal(buf, &jreq); err != nil {
		h.Log.Err(err).Str("method", "credit").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	pid := chi.URLParam(r, "acctID")
	acctID, err := snowflake.ParseString(pid)
	if err != nil {
		h.Log.Err(err).Str("method", "credit").Msg("error parsing account ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"acctID": "invalid format"}})
		return
	}
	acct, err := h.Svc.AdminCredit(r.Context(), CreditReq{AcctID: acctID, Amount: jreq.Amount})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(acct); err != nil {
		h.Log.Err(err).Str("method", "credit").Msg("error encoding response")
	}
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", "create account").Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	var req CreateAccountReq
	if err = json.Unmarshal(buf, &req); err != nil {
		h.Log.Err(err).Str("method", "create account").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	acct, err := h.Svc.CreateAccount(r.Context(), req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(acct); err != nil {
		h.Log.Err(err).Str("method", "create account").Msg("error encoding response")
	}
}

func (h *httpHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"role": "unknown role"}})
		return
	}
	accts, err := h.Svc.ListAccounts(r.Context(), role)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	if accts == nil {
		accts = []Account{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(accts); err != nil {
		h.Log.Err(err).Str("method", "list accounts").Msg("error encoding response")
	}
}

func (h *httpHandler) Balance(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "acctID")
	acctID, err := snowflake.ParseString(pid)
	if err != nil {
		h.Log.Err(err).Str("method", "balance").Msg("error parsing account ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"acctID": "invalid format"}})
		return
	}
	bal, err := h.Svc.Balance(r.Context(), BalanceReq{AcctID: acctID})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := balanceJSONResp{Balance: *bal}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Err(err).Str("method", "balance").Msg("error encoding response")
	}
}

func (h *httpHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	txns, err := h.Svc.Transactions(r.Context(), filter)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(txns); err != nil {
		h.Log.Err(err).Str("method", "transactions").Msg("error encoding response")
	}
}

func (h *httpHandler) Report(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		err = h.Rpt.CSVStatement(r.Context(), w, filter)
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.pdf"`)
		err = h.Rpt.PDFStatement(r.Context(), w, filter)
	default:
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"format": "must be csv or pdf"}})
		return
	}
	if err != nil {
		h.Log.Err(err).Str("method", "report").Msg("error rendering report")
	}
}

func filterFromQuery(r *http.Request) (TxnFilter, error) {
	var filter TxnFilter
	q := r.URL.Query()
	if v := q.Get("startTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, ErrBadRequest{Fields: map[string]string{"startTime": "must be RFC3339"}}
		}
		filter.StartTime = &t
	}
	if v := q.Get("endTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, ErrBadRequest{Fields: map[string]string{"endTime": "must be RFC3339"}}
		}
		filter.EndTime = &t
	}
	if v := q.Get("payerId"); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return filter, ErrBadRequest{Fields: map[string]string{"payerId": "invalid format"}}
		}
		filter.PayerID = id
	}
	if v := q.Get("payeeId"); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return filter, ErrBadRequest{Fields: map[string]string{"payeeId": "invalid format"}}
		}
		filter.PayeeID = id
	}
	return filter, nil
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	enc := func(code int, body interface{}) {
		w.WriteHeader(code)
		ne = json.NewEncoder(w).Encode(body)
	}

	errnf := &ErrNotFound{}
	errbr := &ErrBadRequest{}
	errif := &ErrInsufficientFunds{}
	errcv := &ErrConstraintViolation{}
	errtr := &ErrTransient{}
	erria := &ErrInvalidAmount{}
	errip := &ErrInvalidParties{}
	errpr := &ErrInvalidPayer{}
	errpe := &ErrInvalidPayee{}
	switch {
	case errors.As(err, errnf):
		enc(http.StatusNotFound, errnf)
	case errors.As(err, errbr):
		enc(http.StatusBadRequest, errbr)
	case errors.As(err, erria), errors.As(err, errip),
		errors.As(err, errpr), errors.As(err, errpe):
		enc(http.StatusBadRequest, map[string]string{"message": err.Error()})
	case errors.As(err, errif):
		enc(http.StatusUnprocessableEntity, errif)
	case errors.As(err, errcv):
		enc(http.StatusConflict, errcv)
	case errors.As(err, errtr):
		enc(http.StatusServiceUnavailable, map[string]string{"message": err.Error()})
	default:
		enc(http.StatusInternalServerError, map[string]string{"message": "server error"})
	}
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
