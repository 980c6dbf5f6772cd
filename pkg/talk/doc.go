// Package talk is the bot's conversation service. It records every user
// message, picks the chat provider and model from the persisted settings or
// the configuration, looks up a stored vendor API key and asks the provider
// for a reply. It also serves the API key administration commands.
//
// Service implements transport.ReplyCreator, transport.KeyManager and
// transport.RecordReader.
package talk
