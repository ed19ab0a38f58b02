package nostr_notifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/pco-network/pco/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type nostrNotifier struct{}

func New() ports.Notifier {
	return &nostrNotifier{}
}

// ValidateProfile checks that profile is a NIP-19 nprofile carrying a valid
// public key and at least one valid relay.
func ValidateProfile(profile string) error {
	_, err := decodeProfile(profile)
	return err
}

// Notify sends message as a NIP-04 encrypted direct message, signed with an
// ephemeral key, to every relay of the recipient's nprofile.
func (n *nostrNotifier) Notify(ctx context.Context, to any, message string) error {
	profile, ok := to.(string)
	if !ok {
		return fmt.Errorf("recipient must be a string (NIP-19 encoded nostr profile)")
	}

	recipient, err := decodeProfile(profile)
	if err != nil {
		return err
	}

	ev, err := directMessage(recipient.PublicKey, message)
	if err != nil {
		return err
	}

	return publish(ctx, ev, recipient.Relays)
}

func decodeProfile(profile string) (*nostr.ProfilePointer, error) {
	prefix, result, err := nip19.Decode(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to decode NIP-19 string: %w", err)
	}
	if prefix != "nprofile" {
		return nil, fmt.Errorf("invalid NIP-19 prefix: %s", prefix)
	}

	recipient, ok := result.(nostr.ProfilePointer)
	if !ok {
		return nil, fmt.Errorf("invalid NIP-19 result: %v", result)
	}
	if !nostr.IsValidPublicKey(recipient.PublicKey) {
		return nil, fmt.Errorf("invalid nostr public key: %s", recipient.PublicKey)
	}
	if len(recipient.Relays) == 0 {
		return nil, fmt.Errorf("invalid nostr profile: at least one relay is required")
	}
	for _, relay := range recipient.Relays {
		if !nostr.IsValidRelayURL(relay) {
			return nil, fmt.Errorf("invalid relay URL: %s", relay)
		}
	}
	return &recipient, nil
}

func directMessage(recipientKey, message string) (*nostr.Event, error) {
	ephemeralSec := nostr.GeneratePrivateKey()
	ephemeralPub, err := nostr.GetPublicKey(ephemeralSec)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	sharedSecret, err := nip04.ComputeSharedSecret(recipientKey, ephemeralSec)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	encrypted, err := nip04.Encrypt(message, sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message for %s: %w", recipientKey, err)
	}

	ev := &nostr.Event{
		PubKey:    ephemeralPub,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{{"p", recipientKey}},
		Content:   encrypted,
	}
	if err := ev.Sign(ephemeralSec); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}
	return ev, nil
}

// publish succeeds if at least one relay accepted the event.
func publish(ctx context.Context, ev *nostr.Event, relays []string) error {
	wg := &sync.WaitGroup{}
	delivered := atomic.Bool{}

	for _, url := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()

			relay, err := nostr.RelayConnect(ctx, relayURL)
			if err != nil {
				log.WithError(err).Warnf("failed to connect to relay %s", relayURL)
				return
			}
			defer relay.Close()

			if err := relay.Publish(ctx, *ev); err != nil {
				log.WithError(err).Warnf("failed to publish to relay %s", relayURL)
				return
			}
			delivered.Store(true)
		}(url)
	}

	wg.Wait()

	if !delivered.Load() {
		return fmt.Errorf("failed to publish to any relay")
	}
	return nil
}
