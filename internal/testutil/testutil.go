package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// OrdersSpec is a swagger 2.0 api with a secured read, an open write and an
// operation nobody implements.
const OrdersSpec = `swagger: '2.0'
info:
  title: Orders API
  version: '1.2.0'
host: orders.example.com
schemes:
  - https
basePath: /v1
produces:
  - application/json
consumes:
  - application/json
securityDefinitions:
  jwt:
    type: apiKey
    in: header
    name: Authorization
paths:
  /orders/{order_id}:
    get:
      operationId: getOrder
      security:
        - jwt: []
      parameters:
        - name: order_id
          in: path
          required: true
          type: string
        - name: expand
          in: query
          required: false
          type: boolean
      responses:
        200:
          description: An order
          schema:
            $ref: '#/definitions/Order'
        default:
          description: Error
          schema:
            $ref: '#/definitions/Error'
  /orders:
    post:
      operationId: createOrder
      parameters:
        - name: body
          in: body
          required: true
          schema:
            $ref: '#/definitions/NewOrder'
      responses:
        200:
          description: The created order
          schema:
            $ref: '#/definitions/Order'
  /orders/{order_id}/cancel:
    post:
      operationId: cancelOrder
      parameters:
        - name: order_id
          in: path
          required: true
          type: string
      responses:
        200:
          description: Cancelled
definitions:
  NewOrder:
    type: object
    required:
      - item
    properties:
      item:
        type: string
      quantity:
        type: integer
  Order:
    type: object
    properties:
      id:
        type: string
      item:
        type: string
      quantity:
        type: integer
  Error:
    type: object
    required:
      - status
      - error
    properties:
      status:
        type: integer
        format: int32
      error:
        type: string
      error_description:
        type: string
      user_message:
        type: string
      error_id:
        type: string
`

// UsersSpec is an openapi 3 api.
const UsersSpec = `openapi: 3.0.3
info:
  title: Users API
  version: '0.3.0'
servers:
  - url: http://users.example.com:8080/api
paths:
  /users/{user_id}:
    get:
      operationId: getUser
      parameters:
        - name: user_id
          in: path
          required: true
          schema:
            type: string
      responses:
        '200':
          description: A user
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/User'
components:
  schemas:
    User:
      type: object
      properties:
        id:
          type: string
        email:
          type: string
          format: email
`

// WriteSpec writes content as <dir>/<name>.yaml and returns the path.
func WriteSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// NewSpecDir returns a temp dir holding orders.yaml and users.yaml.
func NewSpecDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	WriteSpec(t, dir, "orders", OrdersSpec)
	WriteSpec(t, dir, "users", UsersSpec)
	return dir
}

// Request represents a test HTTP request
type Request struct {
	Method      string
	Path        string
	Body        interface{}
	Headers     map[string]string
	QueryParams map[string]string
}

// Response represents a test HTTP response
type Response struct {
	*httptest.ResponseRecorder
	Body map[string]interface{}
}

// MakeRequest executes req directly against handler
func MakeRequest(t *testing.T, handler http.Handler, req Request) *Response {
	t.Helper()

	var bodyReader *bytes.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	var httpReq *http.Request
	if bodyReader != nil {
		httpReq = httptest.NewRequest(req.Method, req.Path, bodyReader)
	} else {
		httpReq = httptest.NewRequest(req.Method, req.Path, nil)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.QueryParams != nil {
		q := httpReq.URL.Query()
		for key, value := range req.QueryParams {
			q.Add(key, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httpReq)

	var responseBody map[string]interface{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &responseBody); err != nil {
			t.Logf("Response body is not a json object: %v", err)
		}
	}

	return &Response{
		ResponseRecorder: recorder,
		Body:             responseBody,
	}
}
