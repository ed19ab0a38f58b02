package ports

import "context"

// ExternalRegistry is an external collection of uniquely identified,
// transferable tokens that can be wrapped into taxed assets.
type ExternalRegistry interface {
	OwnerOf(ctx context.Context, tokenId string) (string, error)
	TransferFrom(ctx context.Context, from, to, tokenId string) error
}
