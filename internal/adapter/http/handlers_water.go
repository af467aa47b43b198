package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"hydration/internal/domain"
)

func (s *Server) handleWaterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.water.IsEnabled(r.Context()),
		"unit":    s.water.PreferredUnit(),
	})
}

func (s *Server) handleWaterAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := s.water.RequestAuthorization(r.Context()); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.water.IsEnabled(r.Context()),
		"unit":    s.water.PreferredUnit(),
	})
}

func (s *Server) handleWaterToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"total": s.water.RefreshTodayTotal(r.Context())})
}

func (s *Server) handleWaterEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
		Glass  string  `json:"glass"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q, err := eventQuantity(body.Amount, body.Unit, body.Glass)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logged, err := s.water.RecordConsumption(r.Context(), q)
	if err != nil {
		s.logger.Warn("water event rejected", "amount", q.String(), "err", err)
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logged": logged,
		"total":  s.water.TodayTotal().Get(),
	})
}

// eventQuantity reads either a glass preset or an amount with its unit.
func eventQuantity(amount float64, unit, glass string) (domain.Quantity, error) {
	if glass != "" {
		if amount != 0 || unit != "" {
			return domain.Quantity{}, errors.New("glass and amount are mutually exclusive")
		}
		g, err := domain.ParseGlass(glass)
		if err != nil {
			return domain.Quantity{}, err
		}
		return g.Quantity(), nil
	}
	u, err := domain.ParseUnit(unit)
	if err != nil {
		return domain.Quantity{}, err
	}
	q := domain.NewQuantity(amount, u)
	if err := domain.CheckEntry(q); err != nil {
		return domain.Quantity{}, err
	}
	return q, nil
}

func (s *Server) handleWaterWeek(w http.ResponseWriter, r *http.Request) {
	days := s.water.Series().Get()
	if days == nil {
		days = []domain.DailyBucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit": s.water.PreferredUnit(),
		"days": days,
	})
}

// handleWaterWeekStream sends the current series and then every publication
// as server-sent events until the client goes away.
func (s *Server) handleWaterWeekStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	updates, cancel := s.water.Series().Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if cur := s.water.Series().Get(); cur != nil {
		if err := writeEvent(w, cur); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case days, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, days); err != nil {
				s.logger.Debug("series stream closed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, days []domain.DailyBucket) error {
	data, err := json.Marshal(days)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: series\ndata: %s\n\n", data)
	return err
}
