package demo

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ipoluianov/gomisc/crypt_tools"
	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/attack"
	"github.com/ipoluianov/rsablind/codec"
	"github.com/ipoluianov/rsablind/config"
	"github.com/ipoluianov/rsablind/oracle"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
)

const primalityRounds = 10

// Run generates a key, encrypts the configured message and breaks it twice:
// once with an unrestricted oracle and once with a gated one.
func Run(ctx context.Context, w io.Writer, conf config.Config) error {
	logger.Println("[i]", "Demo::Run", "begin", "bits", conf.Key.Bits)

	keyPair, err := textbook.GenerateKeyPair(rand.Reader, conf.Key.Bits)
	if err != nil {
		return err
	}

	m, err := codec.Encode(conf.Attack.Message)
	if err != nil {
		return err
	}
	ciphertext, err := keyPair.EncryptInt(m)
	if err != nil {
		return errors.Wrapf(err, "message %q", conf.Attack.Message)
	}

	printPrimality(w, keyPair)

	fmt.Fprintln(w, "Single query attack, unrestricted oracle:")
	fmt.Fprintln(w)
	printKey(w, keyPair)

	fmt.Fprintln(w, "Message:")
	fmt.Fprintf(w, "Plaintext: %s\n", conf.Attack.Message)
	fmt.Fprintf(w, "Integer: %s\n\n", m)

	fmt.Fprintln(w, "Encryption:")
	fmt.Fprintf(w, "Ciphertext:\n  %s\n\n", ciphertext)

	counting := oracle.NewCounting(oracle.NewUnrestricted(keyPair))
	trace, err := attack.NewAttacker(keyPair.Public(), counting).Recover(ctx, ciphertext)
	if err != nil {
		return err
	}
	text, err := codec.Decode(trace.Recovered)
	if err != nil {
		return err
	}
	printTrace(w, trace, counting.Calls())
	fmt.Fprintln(w, "Recovered plaintext:")
	fmt.Fprintf(w, "Integer: %s\n", trace.Recovered)
	fmt.Fprintf(w, "Text: %s\n\n", text)

	fmt.Fprintln(w, "Retry attack, oracle answers valid text only:")
	fmt.Fprintln(w)
	counting = oracle.NewCounting(oracle.NewGated(keyPair))
	driver := attack.NewDriver(attack.NewAttacker(keyPair.Public(), counting), conf.Attack.MaxAttempts)
	result, err := driver.RunParallel(ctx, ciphertext, conf.Attack.Workers)
	if err != nil {
		return err
	}
	printResult(w, result, counting.Calls())

	logger.Println("[i]", "Demo::Run", "end")
	return nil
}

// AttackRemote breaks the target published by a running oracle service.
func AttackRemote(ctx context.Context, w io.Writer, baseURL string, conf config.Config) (result attack.Result, err error) {
	logger.Println("[i]", "Demo::AttackRemote", "begin", baseURL)
	remote := oracle.NewRemote(baseURL, conf.RequestTimeout())

	var publicKey textbook.PublicKey
	publicKey, err = remote.PublicKey(ctx)
	if err != nil {
		return
	}
	var target *big.Int
	target, err = remote.Target(ctx)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "Oracle: %s\n", baseURL)
	fmt.Fprintf(w, "Public key (e, n):\n  e = %s\n  n = %s\n\n", publicKey.E, publicKey.N)
	fmt.Fprintf(w, "Target ciphertext:\n  %s\n\n", target)

	counting := oracle.NewCounting(remote)
	driver := attack.NewDriver(attack.NewAttacker(publicKey, counting), conf.Attack.MaxAttempts)
	result, err = driver.RunParallel(ctx, target, conf.Attack.Workers)
	if err != nil {
		return
	}
	printResult(w, result, counting.Calls())
	logger.Println("[i]", "Demo::AttackRemote", "end", "found", result.Found)
	return
}

func printPrimality(w io.Writer, keyPair *textbook.KeyPair) {
	verdict := func(n *big.Int) string {
		if textbook.IsProbablePrime(n, primalityRounds) {
			return "probably prime"
		}
		return "composite"
	}
	fmt.Fprintln(w, "Primality test:")
	fmt.Fprintf(w, "p is %s\n", verdict(keyPair.P))
	fmt.Fprintf(w, "q is %s\n\n", verdict(keyPair.Q))
}

func printKey(w io.Writer, keyPair *textbook.KeyPair) {
	fmt.Fprintln(w, "RSA key:")
	fmt.Fprintf(w, "Public key (e, n):\n  e = %s\n  n = %s\n\n", keyPair.E, keyPair.N)
	fmt.Fprintf(w, "Private key (d):\n  %s\n\n", keyPair.D)
	fmt.Fprintf(w, "Primes:\n  p = %s\n  q = %s\n\n", keyPair.P, keyPair.Q)
	fmt.Fprintf(w, "%s\n", crypt_tools.RSAPublicKeyToPem(keyPair.Public().RSA()))
}

func printTrace(w io.Writer, trace attack.Trace, calls int64) {
	fmt.Fprintln(w, "Blinding attack:")
	fmt.Fprintf(w, "Random factor r:\n  %s\n", trace.R)
	fmt.Fprintf(w, "Blinded ciphertext c' = c * r^e mod n:\n  %s\n", trace.Blinded)
	fmt.Fprintf(w, "Oracle answer (m * r mod n):\n  %s\n", trace.Response)
	fmt.Fprintf(w, "Oracle queries: %d\n\n", calls)
}

func printResult(w io.Writer, result attack.Result, calls int64) {
	if !result.Found {
		fmt.Fprintf(w, "No valid text found after %d attempts.\n", result.Attempts)
		return
	}
	fmt.Fprintf(w, "Recovered after %d attempts (%d oracle queries).\n", result.Attempts, calls)
	fmt.Fprintf(w, "Recovered text: %s\n", result.Text)
	if result.Inconsistencies > 0 {
		fmt.Fprintf(w, "Inconsistent oracle answers: %d\n", result.Inconsistencies)
	}
}
