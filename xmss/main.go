package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bwesterb/go-xmss"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// Size of the encoded xmss.Params.
const paramsSize = 16

// A public key file holds the encoded parameters followed by the key.
func writePublicKey(path string, pk *xmss.PublicKey) error {
	params := pk.Context().Params()
	paramsBuf, err := params.MarshalBinary()
	if err != nil {
		return err
	}
	pkBuf, err := pk.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(paramsBuf, pkBuf...), 0644)
}

func readPublicKey(path string) (*xmss.PublicKey, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) < paramsSize {
		return nil, fmt.Errorf("%s: not a public key file", path)
	}
	var params xmss.Params
	if err = params.UnmarshalBinary(buf[:paramsSize]); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	ctx, err2 := xmss.NewContext(params)
	if err2 != nil {
		return nil, err2
	}
	pk, err2 := ctx.PublicKeyFromBytes(buf[paramsSize:])
	if err2 != nil {
		return nil, err2
	}
	return pk, nil
}

// Opens the input file, or stdin for "-" or an empty path.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func cmdAlgs(c *cli.Context) error {
	for _, name := range xmss.ListNames() {
		ctx := xmss.NewContextFromName(name)
		params := ctx.Params()
		fmt.Printf("%-24s oid %2d  %d signatures of %d bytes\n",
			ctx.Name(), ctx.Oid(), params.MaxSignatureSeqNo()+1,
			ctx.SignatureSize())
	}
	return nil
}

func cmdKeygen(c *cli.Context) error {
	ctx := xmss.NewContextFromName(c.String("alg"))
	if ctx == nil {
		return cli.NewExitError(
			fmt.Sprintf("unknown algorithm %q; see algs", c.String("alg")), 1)
	}
	signer, pk, err := ctx.GenerateKeyPair(c.String("key"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer signer.Close()
	if err := writePublicKey(c.String("pub"), pk); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Printf("Generated %s key pair\n", ctx.Name())
	return nil
}

func cmdSign(c *cli.Context) error {
	signer, err := xmss.LoadSigner(c.String("key"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer signer.Close()

	in, err2 := openInput(c.String("in"))
	if err2 != nil {
		return cli.NewExitError(err2.Error(), 1)
	}
	defer in.Close()

	sig, err := signer.SignFrom(in)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sigBuf, _ := sig.MarshalBinary()
	if err2 = os.WriteFile(c.String("out"), sigBuf, 0644); err2 != nil {
		return cli.NewExitError(err2.Error(), 1)
	}
	return nil
}

func cmdVerify(c *cli.Context) error {
	pk, err := readPublicKey(c.String("pub"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sigBuf, err := os.ReadFile(c.String("sig"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	sig, err2 := pk.Context().SignatureFromBytes(sigBuf)
	if err2 != nil {
		return cli.NewExitError(err2.Error(), 1)
	}
	in, err := openInput(c.String("in"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer in.Close()

	if ok, err2 := pk.VerifyFrom(sig, in); !ok {
		return cli.NewExitError(fmt.Sprintf("Signature is invalid: %v", err2), 2)
	}
	fmt.Printf("Signature %d is valid\n", sig.SeqNo())
	return nil
}

func cmdInfo(c *cli.Context) error {
	signer, err := xmss.LoadSigner(c.String("key"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer signer.Close()

	pkBuf, _ := signer.PublicKey().MarshalBinary()
	fmt.Printf("Algorithm:  %v\n", signer.Context().Params())
	fmt.Printf("Next index: %d\n", signer.SeqNo())
	fmt.Printf("Remaining:  %d\n", signer.SignaturesRemaining())
	fmt.Printf("Public key: %x\n", pkBuf)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "xmss"
	app.Usage = "create and check XMSS[MT] signatures"

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log what the library is doing",
		},
	}

	var logger *zap.Logger
	app.Before = func(c *cli.Context) error {
		if !c.Bool("verbose") {
			return nil
		}
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		xmss.SetLogger(xmss.ZapLogger(logger))
		return nil
	}
	app.After = func(c *cli.Context) error {
		if logger != nil {
			logger.Sync()
		}
		return nil
	}

	keyFlag := cli.StringFlag{
		Name:  "key, k",
		Usage: "path of the private key file",
		Value: "xmss.key",
	}
	pubFlag := cli.StringFlag{
		Name:  "pub, p",
		Usage: "path of the public key file",
		Value: "xmss.pub",
	}
	inFlag := cli.StringFlag{
		Name:  "in, i",
		Usage: "file with the message; - for stdin",
		Value: "-",
	}
	sigFlag := cli.StringFlag{
		Name:  "sig, s",
		Usage: "path of the signature file",
		Value: "xmss.sig",
	}

	app.Commands = []cli.Command{
		{
			Name:   "algs",
			Usage:  "List XMSS[MT] instances",
			Action: cmdAlgs,
		},
		{
			Name:  "keygen",
			Usage: "Generate a key pair",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "alg, a",
					Usage: "XMSS[MT] instance to use",
					Value: "XMSSMT-SHA2_20/4_256",
				},
				keyFlag,
				pubFlag,
			},
			Action: cmdKeygen,
		},
		{
			Name:  "sign",
			Usage: "Sign a message",
			Flags: []cli.Flag{
				keyFlag,
				inFlag,
				cli.StringFlag{
					Name:  "out, o",
					Usage: "where to write the signature",
					Value: "xmss.sig",
				},
			},
			Action: cmdSign,
		},
		{
			Name:   "verify",
			Usage:  "Check a signature",
			Flags:  []cli.Flag{pubFlag, sigFlag, inFlag},
			Action: cmdVerify,
		},
		{
			Name:   "info",
			Usage:  "Show the state of a private key",
			Flags:  []cli.Flag{keyFlag},
			Action: cmdInfo,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
