package packet

// Client opcodes.
const (
	C_OPCODE_HELLO             byte = 0x01
	C_OPCODE_INSTANCE_REGISTRY byte = 0x02
	C_OPCODE_REGISTER_SCHEMA   byte = 0x03
	C_OPCODE_REGISTER_BUNDLE   byte = 0x04
	C_OPCODE_GRANT_COMPONENTS  byte = 0x05
	C_OPCODE_GRANT_INSTANCES   byte = 0x06
	C_OPCODE_MINT_METADATA     byte = 0x07
	C_OPCODE_SCRIPT_CALL       byte = 0x08
	C_OPCODE_GET_ENTITY        byte = 0x09
	C_OPCODE_GET_REGISTRATION  byte = 0x0A
	C_OPCODE_LIST_ENTITIES     byte = 0x0B
)

// Server opcodes.
const (
	S_OPCODE_RESULT       byte = 0x81
	S_OPCODE_ENTITY       byte = 0x82
	S_OPCODE_REGISTRATION byte = 0x83
	S_OPCODE_ENTITIES     byte = 0x84
)
