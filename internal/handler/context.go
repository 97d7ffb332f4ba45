package handler

import (
	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/config"
	"github.com/arcworks/arc/internal/core/ecs"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/arcworks/arc/internal/registry"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Runtime  *ledger.Runtime
	Registry *registry.Service
	Metadata *metadata.Service
	Scripts  *script.Engine
	Index    *ecs.World
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_OPCODE_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(*net.Session), r, deps)
		},
	)

	identified := []packet.SessionState{packet.StateIdentified}
	for opcode, fn := range map[byte]func(*net.Session, *packet.Reader, *Deps){
		packet.C_OPCODE_INSTANCE_REGISTRY: HandleInstanceRegistry,
		packet.C_OPCODE_REGISTER_SCHEMA:   HandleRegisterSchema,
		packet.C_OPCODE_REGISTER_BUNDLE:   HandleRegisterBundle,
		packet.C_OPCODE_GRANT_COMPONENTS:  HandleGrantComponents,
		packet.C_OPCODE_GRANT_INSTANCES:   HandleGrantInstances,
		packet.C_OPCODE_MINT_METADATA:     HandleMintMetadata,
		packet.C_OPCODE_SCRIPT_CALL:       HandleScriptCall,
		packet.C_OPCODE_GET_ENTITY:        HandleGetEntity,
		packet.C_OPCODE_GET_REGISTRATION:  HandleGetRegistration,
		packet.C_OPCODE_LIST_ENTITIES:     HandleListEntities,
	} {
		fn := fn
		reg.Register(opcode, identified, func(sess any, r *packet.Reader) {
			fn(sess.(*net.Session), r, deps)
		})
	}
}
