// Package server is the demo authoritative server for syncache clients.
//
// It exposes each collection of the SQLite store over REST and pushes every
// successful write to websocket subscribers as a realtime message:
//
//	GET    /v1/collections/{name}/records        list
//	POST   /v1/collections/{name}/records        create  -> INSERT
//	GET    /v1/collections/{name}/records/{id}   get
//	PATCH  /v1/collections/{name}/records/{id}   update  -> UPDATE
//	DELETE /v1/collections/{name}/records/{id}   delete  -> DELETE
//	GET    /v1/realtime                          websocket stream
//	GET    /healthz
//	GET    /metrics                              Prometheus exposition
//
// Broadcasts carry the X-Origin-ID header of the request that caused them so
// clients can recognise their own writes.
package server
