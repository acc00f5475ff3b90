// Package router implements the consumer callback registry.
//
// The Router:
//   - Lets independent UI-owning contexts register a receive callback and an
//     optional send capability under a unique id
//   - Fans out every inbound payload to all consumers in registration order
//   - Isolates consumer failures so one bad consumer cannot starve the rest
//   - Routes outbound commands through the single attached transport
package router
