package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"qmaze/maze"
	"qmaze/qtable"
	"qmaze/reinforcement"
	"qmaze/render"
	"qmaze/store"
	"qmaze/token"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 16

type qtableResponse struct {
	Seed   uint32  `json:"seed"`
	Values []int32 `json:"values"`
}

type cellResponse struct {
	Row    int           `json:"row"`
	Col    int           `json:"col"`
	Values qtable.Values `json:"values"`
	Best   string        `json:"best"`
}

type policyEntry struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Action string `json:"action"`
}

type policyResponse struct {
	Actions     []policyEntry   `json:"actions"`
	Path        []maze.Position `json:"path"`
	ReachedGoal bool            `json:"reachedGoal"`
}

type trainResponse struct {
	Stats reinforcement.Stats `json:"stats"`
	Seed  uint32              `json:"seed"`
}

type mintRequest struct {
	Owner string `json:"owner"`
}

type tokenResponse struct {
	TokenID uint32 `json:"tokenId"`
	Owner   string `json:"owner,omitempty"`
	URI     string `json:"uri,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (server *Server) getQTable(w http.ResponseWriter, r *http.Request) {
	snap := server.snapshot()
	writeJSON(w, http.StatusOK, qtableResponse{
		Seed:   snap.Seed,
		Values: snap.Table.Values(),
	})
}

// getCell returns the four action values of a cell. Coordinates outside the
// maze are a client error here rather than the core's panic.
func (server *Server) getCell(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	row, rowErr := strconv.Atoi(vars["row"])
	col, colErr := strconv.Atoi(vars["col"])
	if rowErr != nil || colErr != nil || !maze.InBounds(row, col) {
		http.Error(w, "cell out of range", http.StatusBadRequest)
		return
	}

	snap := server.snapshot()
	q := snap.Table.Decode(row, col)
	writeJSON(w, http.StatusOK, cellResponse{
		Row:    row,
		Col:    col,
		Values: q,
		Best:   qtable.BestAction(q).String(),
	})
}

func (server *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	snap := server.snapshot()
	layout := server.layout()
	policy := snap.Table.ExtractPolicy(&layout)

	resp := policyResponse{}
	layout.Visit(func(pos maze.Position, _ maze.Cell) {
		if action, ok := policy[pos]; ok {
			resp.Actions = append(resp.Actions, policyEntry{Row: pos.Row, Col: pos.Col, Action: action.String()})
		}
	})
	resp.Path, resp.ReachedGoal = policy.Follow(&layout, maze.N*maze.N)
	writeJSON(w, http.StatusOK, resp)
}

func (server *Server) getPolicySVG(w http.ResponseWriter, r *http.Request) {
	snap := server.snapshot()
	layout := server.layout()
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write([]byte(render.PolicySVG(&layout, &snap.Table)))
}

// postTrain runs a training call. Percentages above 100 are rejected here;
// the engine itself would clamp them.
func (server *Server) postTrain(w http.ResponseWriter, r *http.Request) {
	var params reinforcement.Params
	if err := decodeJSON(w, r, &params); err != nil {
		http.Error(w, "bad training parameters: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, snap, err := server.Train(r.Context(), params)
	switch {
	case errors.Is(err, store.ErrLocked):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		server.logger.Printf("train: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	server.logger.Printf("trained episodes=%d steps=%d goals=%d seed=%d",
		stats.Episodes, stats.Steps, stats.GoalsReached, snap.Seed)
	writeJSON(w, http.StatusOK, trainResponse{Stats: stats, Seed: snap.Seed})
}

// postToken mints a token to the requested owner, defaulting to the caller's subject.
func (server *Server) postToken(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "bad mint request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		req.Owner = subject(r)
	}
	if req.Owner == "" {
		http.Error(w, "owner required", http.StatusBadRequest)
		return
	}

	id := server.tokens.Mint(req.Owner)
	writeJSON(w, http.StatusCreated, tokenResponse{TokenID: id, Owner: req.Owner})
}

func tokenID(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	return uint32(id), err
}

func (server *Server) getToken(w http.ResponseWriter, r *http.Request) {
	id, err := tokenID(r)
	if err != nil {
		http.Error(w, "bad token id", http.StatusBadRequest)
		return
	}
	owner, err := server.tokens.OwnerOf(id)
	if err != nil {
		// ErrNoToken or ErrNotMinted
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{TokenID: id, Owner: owner})
}

// getTokenURI renders the current policy and seed into the token's metadata uri.
func (server *Server) getTokenURI(w http.ResponseWriter, r *http.Request) {
	id, err := tokenID(r)
	if err != nil {
		http.Error(w, "bad token id", http.StatusBadRequest)
		return
	}
	if id >= server.tokens.Count() {
		http.Error(w, token.ErrNoToken.Error(), http.StatusNotFound)
		return
	}

	snap := server.snapshot()
	layout := server.layout()
	svg := render.TokenSVG(&layout, &snap)
	writeJSON(w, http.StatusOK, tokenResponse{TokenID: id, URI: render.TokenURI(id, svg)})
}
