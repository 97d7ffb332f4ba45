package handler

import (
	"context"
	"fmt"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/arcworks/arc/internal/registry"
	"github.com/google/uuid"
)

// execute runs fn with the session's signer and replies with the outcome.
func execute(sess *net.Session, req uint32, name string, deps *Deps, fn func(c *ledger.Context, auth ledger.Authority) ([]string, error)) {
	var values []string
	rc, err := deps.Runtime.Execute(context.Background(), name, []ledger.Address{sess.Signer}, func(c *ledger.Context) error {
		auth, err := c.Signer(sess.Signer)
		if err != nil {
			return err
		}
		values, err = fn(c, auth)
		return err
	})
	if err != nil {
		values = nil
	}
	sendResult(sess, req, rc.ID, err, values...)
}

// badRequest replies INVALID_ARGUMENT when decoding failed.
func badRequest(sess *net.Session, req uint32, r *packet.Reader) bool {
	if r.Err() == nil {
		return false
	}
	sendResult(sess, req, uuid.Nil, fmt.Errorf("%w: %v", errInvalidRequest, r.Err()))
	return true
}

// HandleInstanceRegistry processes C_INSTANCE_REGISTRY: [req D][instance Q].
func HandleInstanceRegistry(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance := r.ReadD(), r.ReadQ()
	if badRequest(sess, req, r) {
		return
	}
	execute(sess, req, "instance_registry", deps, func(c *ledger.Context, auth ledger.Authority) ([]string, error) {
		addr, err := deps.Registry.InstanceRegistry(c, auth, instance)
		return []string{addr.String()}, err
	})
}

// HandleRegisterSchema processes C_REGISTER_SCHEMA: [req D][locator S].
func HandleRegisterSchema(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, locator := r.ReadD(), r.ReadS()
	if badRequest(sess, req, r) {
		return
	}
	execute(sess, req, "register_schema", deps, func(c *ledger.Context, _ ledger.Authority) ([]string, error) {
		typ, err := deps.Registry.RegisterComponentSchema(c, locator)
		return []string{typ.String()}, err
	})
}

// HandleRegisterBundle processes C_REGISTER_BUNDLE: [req D][instance Q][bundle key].
func HandleRegisterBundle(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance, bundle := r.ReadD(), r.ReadQ(), r.ReadKey()
	if badRequest(sess, req, r) {
		return
	}
	execute(sess, req, "register_bundle", deps, func(c *ledger.Context, auth ledger.Authority) ([]string, error) {
		addr, err := deps.Registry.RegisterActionBundle(c, auth, registry.InstanceAddress(instance), bundle)
		return []string{addr.String()}, err
	})
}

// HandleGrantComponents processes C_GRANT_COMPONENTS:
// [req D][instance Q][bundle key][n H][type key...].
func HandleGrantComponents(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance, bundle := r.ReadD(), r.ReadQ(), r.ReadKey()
	n := int(r.ReadH())
	types := make([]component.Type, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		types = append(types, r.ReadKey())
	}
	if badRequest(sess, req, r) {
		return
	}
	execute(sess, req, "grant_components", deps, func(c *ledger.Context, auth ledger.Authority) ([]string, error) {
		reg, err := deps.Registry.GrantComponents(c, auth, registry.InstanceAddress(instance), bundle, types)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprint(len(reg.Components))}, nil
	})
}

// HandleGrantInstances processes C_GRANT_INSTANCES:
// [req D][instance Q][bundle key][n H][instance Q...].
func HandleGrantInstances(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance, bundle := r.ReadD(), r.ReadQ(), r.ReadKey()
	n := int(r.ReadH())
	instances := make([]uint64, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		instances = append(instances, r.ReadQ())
	}
	if badRequest(sess, req, r) {
		return
	}
	execute(sess, req, "grant_instances", deps, func(c *ledger.Context, auth ledger.Authority) ([]string, error) {
		reg, err := deps.Registry.GrantInstances(c, auth, registry.InstanceAddress(instance), bundle, instances)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprint(len(reg.Instances))}, nil
	})
}
