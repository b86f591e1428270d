package cfg

import (
	"context"
	"flag"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/apiedge/internal/xerrors"
)

// FillFromSSM reads every parameter directly under path and applies it to
// the flag named by the parameter's last segment, so
// /apiedge/prod/allowed-origin sets -allowed-origin. Flags already set on
// the CLI or from env are left alone. Unknown names are logged and skipped.
func FillFromSSM(ctx context.Context, fs *flag.FlagSet, client ssm.GetParametersByPathAPIClient, root string, logf func(string, ...any)) error {
	if root == "" {
		return nil
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	p := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(root),
		WithDecryption: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return xerrors.Wrapf(err, "read ssm parameters under %q", root)
		}
		for _, param := range page.Parameters {
			name := path.Base(aws.ToString(param.Name))
			f := fs.Lookup(name)
			if f == nil {
				if logf != nil {
					logf("ssm parameter %q does not match a flag, skipping", aws.ToString(param.Name))
				}
				continue
			}
			if set[name] {
				continue
			}
			setOrRestore(fs, f, aws.ToString(param.Value), "ssm "+aws.ToString(param.Name), logf)
		}
	}
	return nil
}
