package interpreter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/httpengine"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/sandbox"
	"github.com/oneclient/comlink-runtime/variables"
)

func intPtr(i int) *int { return &i }

func newTestDriver(t *testing.T, serviceURL string, doc *mapast.MapDocument) *Driver {
	t.Helper()
	return &Driver{
		Document: doc,
		HTTP:     httpengine.New(http.DefaultClient),
		Sandbox:  sandbox.New(),
		ServiceURL: func(id string) (string, bool) {
			return serviceURL, true
		},
	}
}

func TestSimpleGETMapsBodyField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 12}`))
	}))
	defer srv.Close()

	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "GetTwelve",
				Statements: []mapast.Node{
					&mapast.HttpCallStatement{
						Method:    "GET",
						URL:       "/twelve",
						ServiceID: "default",
						ResponseHandlers: []*mapast.HttpResponseHandler{
							{
								StatusCode: intPtr(200),
								Statements: []mapast.Node{
									&mapast.OutcomeStatement{
										Value:     &mapast.JessieExpression{Source: "body.data"},
										Terminate: true,
									},
								},
							},
						},
					},
				},
			},
		},
	}

	d := newTestDriver(t, srv.URL, doc)
	out, err := d.Run(context.Background(), "GetTwelve", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 12.0, out)
}

func TestPathParameterFromInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/twelve/2", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 144}`))
	}))
	defer srv.Close()

	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "GetByPage",
				Statements: []mapast.Node{
					&mapast.HttpCallStatement{
						Method:    "GET",
						URL:       "/twelve/{input.page}",
						ServiceID: "default",
						ResponseHandlers: []*mapast.HttpResponseHandler{
							{
								StatusCode: intPtr(200),
								Statements: []mapast.Node{
									&mapast.OutcomeStatement{
										Value:     &mapast.JessieExpression{Source: "body.data"},
										Terminate: true,
									},
								},
							},
						},
					},
				},
			},
		},
	}

	d := newTestDriver(t, srv.URL, doc)
	out, err := d.Run(context.Background(), "GetByPage", variables.Mapping{"page": 2.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 144.0, out)
}

// fakeBinaryData is a minimal variables.BinaryData mock recording
// lifecycle calls, for end-to-end assertions on Driver.Run's wiring.
type fakeBinaryData struct {
	initialized bool
	destroyed   bool
	data        []byte
}

func (f *fakeBinaryData) Initialize() error { f.initialized = true; return nil }
func (f *fakeBinaryData) Destroy() error    { f.destroyed = true; return nil }
func (f *fakeBinaryData) GetAllData() ([]byte, error) {
	return f.data, nil
}

func TestRunInitializesAndDestroysInputBinaryData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 1}`))
	}))
	defer srv.Close()

	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "Ping",
				Statements: []mapast.Node{
					&mapast.HttpCallStatement{
						Method:    "GET",
						URL:       "/ping",
						ServiceID: "default",
						ResponseHandlers: []*mapast.HttpResponseHandler{
							{
								StatusCode: intPtr(200),
								Statements: []mapast.Node{
									&mapast.OutcomeStatement{
										Value:     &mapast.JessieExpression{Source: "body.data"},
										Terminate: true,
									},
								},
							},
						},
					},
				},
			},
		},
	}

	file := &fakeBinaryData{data: []byte("ignored")}
	input := variables.Mapping{"attachment": file}

	d := newTestDriver(t, srv.URL, doc)
	_, err := d.Run(context.Background(), "Ping", input, nil)
	require.NoError(t, err)
	assert.True(t, file.initialized)
	assert.True(t, file.destroyed)
}

func TestRunMaterializesBinaryDataInResult(t *testing.T) {
	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "Echo",
				Statements: []mapast.Node{
					&mapast.OutcomeStatement{
						Value:     &mapast.JessieExpression{Source: "input.file"},
						Terminate: true,
					},
				},
			},
		},
	}

	file := &fakeBinaryData{data: []byte("payload")}
	input := variables.Mapping{"file": file}

	d := newTestDriver(t, "http://unused.test", doc)
	out, err := d.Run(context.Background(), "Echo", input, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)
	assert.True(t, file.destroyed)
}

func TestRunAttachesASTPathToInterpretationError(t *testing.T) {
	badExpr := &mapast.HttpRequest{}
	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "Bad",
				Statements:  []mapast.Node{badExpr},
			},
		},
	}

	d := newTestDriver(t, "http://unused.test", doc)
	_, err := d.Run(context.Background(), "Bad", nil, nil)
	require.Error(t, err)

	interpErr, ok := comlinkerr.As[*comlinkerr.InterpretationError](err)
	require.True(t, ok)
	assert.Equal(t, "MapDocument.Maps[0].Statements[0]", interpErr.ASTPath())
}

func TestHTTPCallFailsOnNonScalarHeaderValue(t *testing.T) {
	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "BadHeader",
				Statements: []mapast.Node{
					&mapast.HttpCallStatement{
						Method:    "GET",
						URL:       "/twelve",
						ServiceID: "default",
						Request: &mapast.HttpRequest{
							Headers: &mapast.ObjectLiteral{
								Fields: []*mapast.Assignment{
									{Key: []string{"x-nested"}, Value: &mapast.ObjectLiteral{}},
								},
							},
						},
						ResponseHandlers: []*mapast.HttpResponseHandler{
							{
								StatusCode: intPtr(200),
								Statements: []mapast.Node{
									&mapast.OutcomeStatement{Value: &mapast.JessieExpression{Source: "body.data"}, Terminate: true},
								},
							},
						},
					},
				},
			},
		},
	}

	d := newTestDriver(t, "http://unused.test", doc)
	_, err := d.Run(context.Background(), "BadHeader", nil, nil)
	require.Error(t, err)
	execErr, ok := comlinkerr.As[*comlinkerr.ExecutionError](err)
	require.True(t, ok)
	assert.Contains(t, execErr.Error(), "x-nested")
}

func TestMappedHTTPErrorFromStatusHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	doc := &mapast.MapDocument{
		Operations: map[string]*mapast.OperationDefinition{},
		Maps: []*mapast.MapDefinition{
			{
				UseCaseName: "Lookup",
				Statements: []mapast.Node{
					&mapast.HttpCallStatement{
						Method:    "GET",
						URL:       "/missing",
						ServiceID: "default",
						ResponseHandlers: []*mapast.HttpResponseHandler{
							{
								StatusCode: intPtr(404),
								Statements: []mapast.Node{
									&mapast.OutcomeStatement{
										Value: &mapast.ObjectLiteral{
											Fields: []*mapast.Assignment{
												{Key: []string{"message"}, Value: &mapast.PrimitiveLiteral{Value: "Nothing was found"}},
											},
										},
										IsError:   true,
										Terminate: true,
									},
								},
							},
						},
					},
				},
			},
		},
	}

	d := newTestDriver(t, srv.URL, doc)
	_, err := d.Run(context.Background(), "Lookup", nil, nil)
	require.Error(t, err)
	mapped, ok := comlinkerr.As[*comlinkerr.MappedHTTPError](err)
	require.True(t, ok)
	assert.Equal(t, 404, mapped.StatusCode)
	props, ok := variables.AsMapping(mapped.Properties)
	require.True(t, ok)
	assert.Equal(t, "Nothing was found", props["message"])
}
