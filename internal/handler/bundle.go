package handler

import (
	"fmt"

	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/arcworks/arc/internal/registry"
	"github.com/google/uuid"
)

// HandleMintMetadata processes C_MINT_METADATA:
// [req D][instance Q][entity id Q][mint key][update authority key]
// [name S][symbol S][uri S][mutable C].
func HandleMintMetadata(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance, entityID := r.ReadD(), r.ReadQ(), r.ReadQ()
	mint := r.ReadKey()
	md := &metadata.Metadata{
		UpdateAuthority: r.ReadKey(),
		Mint:            mint,
		Name:            r.ReadS(),
		Symbol:          r.ReadS(),
		URI:             r.ReadS(),
		IsMutable:       r.ReadC() != 0,
	}
	if badRequest(sess, req, r) {
		return
	}
	ri := registry.InstanceAddress(instance)
	registration := registry.RegistrationAddress(ri, deps.Metadata.Identity())
	execute(sess, req, "mint_metadata", deps, func(c *ledger.Context, _ ledger.Authority) ([]string, error) {
		entity, err := deps.Metadata.MintWithMetadata(c, ri, registration, entityID, mint, md)
		return []string{entity.String()}, err
	})
}

// HandleScriptCall processes C_SCRIPT_CALL:
// [req D][script S][function S][n C][arg S...].
func HandleScriptCall(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, name, fn := r.ReadD(), r.ReadS(), r.ReadS()
	n := int(r.ReadC())
	args := make([]string, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		args = append(args, r.ReadS())
	}
	if badRequest(sess, req, r) {
		return
	}
	if deps.Scripts == nil {
		sendResult(sess, req, uuid.Nil, script404(name))
		return
	}
	execute(sess, req, "script_call", deps, func(c *ledger.Context, _ ledger.Authority) ([]string, error) {
		return deps.Scripts.Call(c, name, fn, args...)
	})
}

func script404(name string) error {
	return fmt.Errorf("%q: %w", name, script.ErrScriptNotFound)
}
