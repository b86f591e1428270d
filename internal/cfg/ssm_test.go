package cfg

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// fakeSSM serves pages of parameters keyed by NextToken.
type fakeSSM struct {
	pages [][]types.Parameter
	err   error
	input []*ssm.GetParametersByPathInput
}

func (f *fakeSSM) GetParametersByPath(_ context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.input = append(f.input, in)
	if f.err != nil {
		return nil, f.err
	}
	idx := 0
	if in.NextToken != nil {
		idx = int(aws.ToString(in.NextToken)[0] - '0')
	}
	out := &ssm.GetParametersByPathOutput{Parameters: f.pages[idx]}
	if idx+1 < len(f.pages) {
		out.NextToken = aws.String(string(rune('0' + idx + 1)))
	}
	return out, nil
}

func param(name, value string) types.Parameter {
	return types.Parameter{Name: aws.String(name), Value: aws.String(value)}
}

func TestFillFromSSM_FillsUnsetFlagsAcrossPages(t *testing.T) {
	t.Setenv("TESTSSM_LOG_LEVEL", "warn")

	client := &fakeSSM{pages: [][]types.Parameter{
		{param("/apiedge/prod/allowed-origin", "https://app.example.com"), param("/apiedge/prod/http-port", "8181")},
		{param("/apiedge/prod/log-level", "debug"), param("/apiedge/prod/body-limit", "2048")},
	}}
	var logged []string
	fs, c := newTestFlags(t, []string{"-http-port=7000"})
	FillFromEnv(fs, "TESTSSM_", nil)

	err := FillFromSSM(context.Background(), fs, client, "/apiedge/prod", func(f string, a ...any) { logged = append(logged, f) })
	if err != nil {
		t.Fatalf("FillFromSSM: %v", err)
	}

	if c.AllowedOrigin != "https://app.example.com" {
		t.Errorf("AllowedOrigin = %q", c.AllowedOrigin)
	}
	if c.BodyLimit != 2048 {
		t.Errorf("BodyLimit = %d, want value from second page", c.BodyLimit)
	}
	if c.HTTPPort != 7000 {
		t.Errorf("HTTPPort = %d, CLI should win over ssm", c.HTTPPort)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, env should win over ssm", c.LogLevel)
	}
	if len(client.input) != 2 || aws.ToString(client.input[0].Path) != "/apiedge/prod" || !aws.ToBool(client.input[0].WithDecryption) {
		t.Fatalf("unexpected requests: %+v", client.input)
	}
	if len(logged) != 0 {
		t.Fatalf("unexpected logs: %v", logged)
	}
}

func TestFillFromSSM_UnknownAndInvalid(t *testing.T) {
	client := &fakeSSM{pages: [][]types.Parameter{{
		param("/apiedge/prod/no-such-flag", "x"),
		param("/apiedge/prod/parameter-limit", "lots"),
	}}}
	var logged int
	fs, c := newTestFlags(t, nil)

	if err := FillFromSSM(context.Background(), fs, client, "/apiedge/prod", func(string, ...any) { logged++ }); err != nil {
		t.Fatalf("FillFromSSM: %v", err)
	}
	if c.ParameterLimit != 1000 {
		t.Fatalf("ParameterLimit = %d, want default kept", c.ParameterLimit)
	}
	if logged != 2 {
		t.Fatalf("logged %d messages, want 2", logged)
	}
}

func TestFillFromSSM_Errors(t *testing.T) {
	fs, _ := newTestFlags(t, nil)
	boom := errors.New("AccessDenied")

	err := FillFromSSM(context.Background(), fs, &fakeSSM{err: boom}, "/apiedge/prod", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped AccessDenied", err)
	}
	wantErrContains(t, err, "/apiedge/prod")
}

func TestFillFromSSM_EmptyPathIsNoop(t *testing.T) {
	fs, _ := newTestFlags(t, nil)
	client := &fakeSSM{}
	if err := FillFromSSM(context.Background(), fs, client, "", nil); err != nil {
		t.Fatalf("FillFromSSM: %v", err)
	}
	if len(client.input) != 0 {
		t.Fatal("client called for empty path")
	}
}
