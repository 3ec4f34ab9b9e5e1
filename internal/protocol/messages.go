package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Opaque player identity from the auth provider; empty plays as guest
	// and disables autosave.
	Identity string `json:"identity,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ConnectionID    string      `json:"connection_id"`
	Identity        string      `json:"identity,omitempty"`
	HasSave         bool        `json:"has_save"`
	Params          RoomParams  `json:"params"`
	Catalog         CatalogInfo `json:"catalog"`
}

type RoomParams struct {
	GridSize      int `json:"grid_size"`
	InitialBudget int `json:"initial_budget"`
	TickMs        int `json:"tick_ms"`
	AutosaveMs    int `json:"autosave_ms"`
	NewsFeedCap   int `json:"news_feed_cap"`
}

type CatalogInfo struct {
	Digest    string          `json:"digest"`
	Furniture []FurnitureInfo `json:"furniture"`
}

type FurnitureInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Cost         int    `json:"cost"`
	StyleYield   int    `json:"style_yield"`
	ComfortYield int    `json:"comfort_yield,omitempty"`
	Class        string `json:"class"`
}

// RESULT (server -> client): the synchronous outcome of one ACT.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
