package workflow

// PageRef identifies the page currently being read.
type PageRef struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// ErrorInfo records why the machine entered ERROR.
type ErrorInfo struct {
	Reason string `json:"reason"`
}

// Context is the mutable record owned by the machine. Subscribers and API
// consumers only ever see value copies produced by snapshot().
type Context struct {
	CurrentPage     *PageRef   `json:"current_page,omitempty"`
	IsLastPage      bool       `json:"is_last_page"`
	PausePositionMs *int64     `json:"pause_position_ms,omitempty"`
	LastError       *ErrorInfo `json:"last_error,omitempty"`
}

// snapshot deep-copies the context so the machine's record is never aliased.
func (c *Context) snapshot() Context {
	out := Context{IsLastPage: c.IsLastPage}
	if c.CurrentPage != nil {
		p := *c.CurrentPage
		out.CurrentPage = &p
	}
	if c.PausePositionMs != nil {
		v := *c.PausePositionMs
		out.PausePositionMs = &v
	}
	if c.LastError != nil {
		e := *c.LastError
		out.LastError = &e
	}
	return out
}

func (c *Context) clear() {
	c.CurrentPage = nil
	c.IsLastPage = false
	c.PausePositionMs = nil
	c.LastError = nil
}
