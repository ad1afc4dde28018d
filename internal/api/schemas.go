package api

// Request schemas enforced at the boundary. The engine itself re-checks the
// business rules; these only reject malformed shapes early.

const createWalletSchema = `{
	"type": "object",
	"required": ["email"],
	"additionalProperties": false,
	"properties": {
		"email": {"type": "string", "format": "email", "minLength": 3, "maxLength": 254}
	}
}`

const transactionSchema = `{
	"type": "object",
	"required": ["email", "amount"],
	"additionalProperties": false,
	"properties": {
		"email":       {"type": "string", "format": "email", "minLength": 3, "maxLength": 254},
		"amount":      {"type": "integer", "exclusiveMinimum": 0},
		"description": {"type": "string", "maxLength": 500}
	}
}`

const statusSchema = `{
	"type": "object",
	"required": ["status"],
	"additionalProperties": false,
	"properties": {
		"status": {"type": "string", "enum": ["ACTIVE", "INACTIVE", "DEACTIVATED"]}
	}
}`
