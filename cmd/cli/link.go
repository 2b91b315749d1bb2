package cli

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	appservice "github.com/turtacn/argproxy/internal/application/service"
	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/pkg/errors"
)

// linkView is the printable form of a parsed link.
type linkView struct {
	ChannelID    uint64     `json:"channel_id"`
	AttachmentID uint64     `json:"attachment_id"`
	Filename     string     `json:"filename"`
	CacheKey     string     `json:"cache_key"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	Signature    string     `json:"signature,omitempty"`
	Canonical    string     `json:"canonical"`
}

func newLinkView(link models.SignedURL) linkView {
	v := linkView{
		ChannelID:    link.ChannelID,
		AttachmentID: link.AttachmentID,
		Filename:     link.Filename,
		CacheKey:     link.CacheKey(),
		Canonical:    link.String(),
	}
	if w := link.Window; w != nil {
		expiresAt, issuedAt := w.ExpiresAt, w.IssuedAt
		v.ExpiresAt = &expiresAt
		v.IssuedAt = &issuedAt
		v.Signature = hex.EncodeToString(w.Signature)
	}
	return v
}

// parseArg accepts a full cdn link, a bare /attachments/... path or a proxy url wrapping a link.
func parseArg(raw string) (models.SignedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return models.SignedURL{}, errors.ErrParse("argument is not a valid url").WithCause(err)
	}
	return appservice.ParseInbound(u)
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <link>",
		Short: "Parse a signed attachment link and print its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := parseArg(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newLinkView(link))
		},
	}
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <link>",
		Short: "Print the store key of a signed attachment link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := parseArg(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), link.CacheKey())
			return err
		},
	}
}
