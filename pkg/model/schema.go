package model

const (
	addressPattern = `^0x[0-9a-fA-F]{40}$`
	amountPattern  = `^[0-9]+(\\.[0-9]{1,18})?$`
)

var submitMessageSchema = `{
  "type": "object",
  "properties": {
    "topic_id": {"type": "string", "pattern": "` + addressPattern + `"},
    "message": {"type": "string", "minLength": 1},
    "payload": {}
  },
  "required": ["topic_id"],
  "anyOf": [{"required": ["message"]}, {"required": ["payload"]}],
  "additionalProperties": false
}`

var transferSchema = `{
  "type": "object",
  "properties": {
    "to": {"type": "string", "pattern": "` + addressPattern + `"},
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  },
  "required": ["to", "amount"],
  "additionalProperties": false
}`

var createAccountSchema = `{
  "type": "object",
  "properties": {
    "initial_balance": {"type": "string", "pattern": "` + amountPattern + `"}
  },
  "additionalProperties": false
}`

var signedBytesSchema = `{
  "type": "object",
  "properties": {
    "envelope": {"type": "string", "minLength": 1}
  },
  "required": ["envelope"],
  "additionalProperties": false
}`

var uploadPayloadSchema = `{
  "type": "object",
  "properties": {
    "payload": {"not": {"type": "null"}}
  },
  "required": ["payload"],
  "additionalProperties": false
}`

var fetchPayloadSchema = `{
  "type": "object",
  "properties": {
    "content_id": {"type": "string", "minLength": 1}
  },
  "required": ["content_id"],
  "additionalProperties": false
}`
