package handler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/arcworks/arc/internal/registry"
	"github.com/google/uuid"
)

// HandleGetEntity processes C_GET_ENTITY: [req D][entity key].
// Replies S_ENTITY: [req D][entity key][id Q][instance Q][registry key]
// [n H]{[type key][max size Q][data blob]}.
func HandleGetEntity(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, addr := r.ReadD(), r.ReadKey()
	if badRequest(sess, req, r) {
		return
	}
	var e *coreds.Entity
	err := deps.Runtime.View(context.Background(), func(c *ledger.Context) error {
		var err error
		e, err = deps.Registry.Core().Entity(c, addr)
		return err
	})
	var types []component.Type
	if err == nil {
		types = e.Components.Types()
		err = checkCount(len(types), math.MaxUint16, "components")
	}
	if err != nil {
		sendResult(sess, req, uuid.Nil, err)
		return
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ENTITY)
	w.WriteD(req)
	w.WriteKey(addr)
	w.WriteQ(e.EntityID)
	w.WriteQ(e.Instance)
	w.WriteKey(e.Registry)
	w.WriteH(uint16(len(types)))
	for _, t := range types {
		c := e.Components[t]
		w.WriteKey(t)
		w.WriteQ(c.MaxSize)
		w.WriteBlob(c.Data)
	}
	sess.Send(w.Bytes())
}

// HandleGetRegistration processes C_GET_REGISTRATION: [req D][instance Q][bundle key].
// Replies S_REGISTRATION: [req D][bundle key][can mint C][n H][instance Q...]
// [n H][type key...].
func HandleGetRegistration(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance, bundle := r.ReadD(), r.ReadQ(), r.ReadKey()
	if badRequest(sess, req, r) {
		return
	}
	var reg *registry.Registration
	err := deps.Runtime.View(context.Background(), func(c *ledger.Context) error {
		var err error
		reg, err = deps.Registry.Registration(c, registry.RegistrationAddress(registry.InstanceAddress(instance), bundle))
		return err
	})
	if err == nil {
		err = errors.Join(
			checkCount(len(reg.Instances), math.MaxUint16, "instances"),
			checkCount(len(reg.Components), math.MaxUint16, "components"),
		)
	}
	if err != nil {
		sendResult(sess, req, uuid.Nil, err)
		return
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_REGISTRATION)
	w.WriteD(req)
	w.WriteKey(reg.ActionBundle)
	if reg.CanMint {
		w.WriteC(1)
	} else {
		w.WriteC(0)
	}
	w.WriteH(uint16(len(reg.Instances)))
	for _, i := range reg.Instances {
		w.WriteQ(i)
	}
	w.WriteH(uint16(len(reg.Components)))
	for _, t := range reg.Components {
		w.WriteKey(t)
	}
	sess.Send(w.Bytes())
}

// HandleListEntities processes C_LIST_ENTITIES: [req D][instance Q][n H][type key...].
// Replies S_ENTITIES: [req D][n D][entity key...]. The index trails the
// store by one tick.
func HandleListEntities(sess *net.Session, r *packet.Reader, deps *Deps) {
	req, instance := r.ReadD(), r.ReadQ()
	n := int(r.ReadH())
	types := make([]component.Type, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		types = append(types, r.ReadKey())
	}
	if badRequest(sess, req, r) {
		return
	}
	if deps.Index == nil {
		sendResult(sess, req, uuid.Nil, fmt.Errorf("%w: entity index disabled", errInvalidRequest))
		return
	}

	entities := deps.Index.Query(registry.InstanceAddress(instance), types)
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ENTITIES)
	w.WriteD(req)
	w.WriteD(uint32(len(entities)))
	for _, e := range entities {
		w.WriteKey(e)
	}
	sess.Send(w.Bytes())
}
