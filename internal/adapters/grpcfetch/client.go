// Package grpcfetch implements store.Adapter by calling a remote fetch service
package grpcfetch

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/handlers"
	"github.com/asakaida/kizuna/internal/store"
)

// Client is a store.Adapter backed by a kizuna.v1.FetchService
type Client struct {
	conn grpc.ClientConnInterface
}

// New creates a client on conn
func New(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// FindRecord fetches one record
func (c *Client) FindRecord(ctx context.Context, ref entities.RecordRef) (*store.Payload, error) {
	doc, err := c.invoke(ctx, handlers.FindRecordMethod, handlers.NewRef(ref))
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", ref, err)
	}
	if len(doc.Data) != 1 {
		return nil, fmt.Errorf("record %s: %w", ref, store.ErrNotFound)
	}
	return doc.Data[0], nil
}

// FindMany fetches the existing records among refs
func (c *Client) FindMany(ctx context.Context, refs []entities.RecordRef) ([]*store.Payload, error) {
	req := handlers.ManyRequest{Refs: make([]handlers.Ref, 0, len(refs))}
	for _, ref := range refs {
		req.Refs = append(req.Refs, handlers.NewRef(ref))
	}
	doc, err := c.invoke(ctx, handlers.FindManyMethod, req)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// FindLink fetches the records behind a relationship link
func (c *Client) FindLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) ([]*store.Payload, error) {
	doc, err := c.invoke(ctx, handlers.FindLinkMethod, handlers.LinkRequest{
		Owner:    handlers.NewRef(owner),
		Link:     link,
		Relation: rel.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("link %q of %s.%s: %w", link, owner, rel.Name, err)
	}
	return doc.Data, nil
}

func (c *Client) invoke(ctx context.Context, method string, req interface{}) (*store.Document, error) {
	in, err := handlers.EncodeStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fromStatus(err)
	}
	return handlers.DecodeDocument(out)
}

// fromStatus maps fetch service status codes back to store errors
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.NotFound {
		return fmt.Errorf("%s: %w", st.Message(), store.ErrNotFound)
	}
	return err
}
