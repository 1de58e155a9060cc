package handler

import "time"

func (h *ClickHandler) SetClock(now func() time.Time) { h.now = now }
