/*
Package httpapi wires gorilla/mux routers around pkg/controller's and
pkg/gateway's Service methods. Handlers are thin: decode, call, encode.
All business logic lives in the two Service packages; this package's
only job is the HTTP/WS surface and its shared concerns (error body
shape, request metrics, route labeling).
*/
package httpapi
