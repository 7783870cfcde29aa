package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/dgallion1/talkturns/internal/pathstore"
	"github.com/dgallion1/talkturns/internal/talk"
)

// KeyPrefix roots every node written by Pathstore.
const KeyPrefix = "talkturns"

// PageNode is the value stored for one page.
type PageNode struct {
	Title     string     `json:"title"`
	PageID    string     `json:"page_id"`
	UnifiedID string     `json:"unified_id,omitempty"`
	Language  string     `json:"lang"`
	Turns     []NodeTurn `json:"turns"`
}

// NodeTurn is one turn inside a PageNode.
type NodeTurn struct {
	Number  int    `json:"turn_num"`
	Speaker string `json:"user"`
	Text    string `json:"turn"`
}

// Pathstore stores one node per page at talkturns/<lang>/<page_id>.
type Pathstore struct {
	client *pathstore.Client
}

// NewPathstore returns a sink storing pages through client.
func NewPathstore(client *pathstore.Client) *Pathstore {
	return &Pathstore{client: client}
}

// PageKey returns the node key for one page.
func PageKey(lang talk.Language, pageID string) string {
	return fmt.Sprintf("%s/%s/%s", KeyPrefix, lang, pageID)
}

// Reset removes every page stored for lang.
func (p *Pathstore) Reset(ctx context.Context, lang talk.Language) error {
	if err := p.client.DeleteNode(ctx, KeyPrefix+"/"+string(lang), true); err != nil {
		return classifyHTTP(err)
	}
	return nil
}

// WriteTurns groups consecutive turns by page and stores each page whole.
func (p *Pathstore) WriteTurns(ctx context.Context, turns []talk.Turn) error {
	for len(turns) > 0 {
		first := turns[0]
		n := 1
		for n < len(turns) && turns[n].PageID == first.PageID && turns[n].Language == first.Language {
			n++
		}
		node := PageNode{
			Title:     first.Title,
			PageID:    first.PageID,
			UnifiedID: first.UnifiedID,
			Language:  string(first.Language),
			Turns:     make([]NodeTurn, n),
		}
		for i, t := range turns[:n] {
			node.Turns[i] = NodeTurn{Number: t.Number, Speaker: t.Speaker, Text: t.Text}
		}
		req := pathstore.NodeRequest{Value: node, MergeMode: "replace", Source: KeyPrefix}
		if err := p.client.PutNode(ctx, PageKey(first.Language, first.PageID), req); err != nil {
			return classifyHTTP(err)
		}
		turns = turns[n:]
	}
	return nil
}

// ReadPage loads the stored turns of one page. A page never written is (nil, nil).
func (p *Pathstore) ReadPage(ctx context.Context, lang talk.Language, pageID string) (*PageNode, error) {
	resp, err := p.client.GetNode(ctx, PageKey(lang, pageID))
	if err != nil || resp == nil {
		return nil, err
	}
	var node PageNode
	if err := json.Unmarshal(resp.Value, &node); err != nil {
		return nil, fmt.Errorf("decode page node: %w", err)
	}
	return &node, nil
}

func (p *Pathstore) Close() error {
	p.client.Close()
	return nil
}

func classifyHTTP(err error) error {
	var se *pathstore.StatusError
	if errors.As(err, &se) && se.Temporary() {
		return &RetryableError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &RetryableError{Err: err}
	}
	return err
}
