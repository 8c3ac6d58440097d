// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/kkt"
	"github.com/curioloop/socp/sparse"
)

// iterDriver orchestrates one Fit call, following the teacher's
// iterDriver/mainLoop split (lbfgsb/driver.go): each phase of the
// Mehrotra predictor-corrector iteration gets its own method, called in
// sequence from mainLoop. The iteration runs in the homogeneous self-dual
// embedding of spec.md §4: tau and kappa ride along as two extra
// KKT-coupled Newton variables, and primal/dual infeasibility is detected
// from their ratio rather than from an ad hoc heuristic.
type iterDriver struct {
	o *Optimizer
	w *Workspace
}

// Fit runs the interior-point iteration from the two-KKT-solve cold start
// of spec.md §4.8, using Workspace w, which must have been created by
// o.Init().
func (o *Optimizer) Fit(w *Workspace) *Result {
	if w.n != o.n || w.p != o.p || w.m != o.m {
		panic("socp: workspace dimensions do not match the optimizer")
	}
	d := &iterDriver{o: o, w: w}
	task := d.mainLoop()

	x := append([]float64(nil), w.x...)
	y := append([]float64(nil), w.y...)
	z := append([]float64(nil), w.z...)
	s := append([]float64(nil), w.s...)
	o.backScale(x, y, z, s, w.tau)

	return &Result{
		OK:  task == taskOptimal || task == taskOptimalInacc,
		X:   x, Y: y, Z: z, S: s,
		Obj: floats.Dot(o.c, w.x) / w.tau,
		Summary: Summary{
			Status:  taskToStatus(task),
			NumIter: w.iter,
			Info:    w.info,
		},
	}
}

// backScale undoes the equilibration column/row scaling on a solution in
// place and divides out the embedding's homogenizing variable tau (spec.md
// §4.11): x was solved in equilibrated, tau-homogeneous coordinates, so the
// true x is Col[j]*x_scaled[j]/tau; the multipliers y and z are multiplied
// by their row scales (RowA, RowG) and the slack s is divided by RowG, each
// also divided by tau.
func (o *Optimizer) backScale(x, y, z, s []float64, tau float64) {
	for j := range x {
		x[j] *= o.scaling.Col[j] / tau
	}
	for i := range y {
		y[i] *= o.scaling.RowA[i] / tau
	}
	for i := range z {
		z[i] *= o.scaling.RowG[i] / tau
	}
	for i := range s {
		s[i] /= o.scaling.RowG[i] * tau
	}
}

func (d *iterDriver) mainLoop() iterTask {
	o, w := d.o, d.w
	if !d.initialize() {
		return taskNumericalFail
	}

	var relaxedVerdict iterTask // remembers a relaxed ("_inacc") exit or infeasibility cert once seen

	for w.iter = 0; w.iter <= o.settings.MaxIter; w.iter++ {
		d.computeResiduals()
		d.computeInformation()

		if o.logger.enable(LogIter) {
			o.logger.log("iter %3d: pcost=% .6e dcost=% .6e pres=%.2e dres=%.2e gap=%.2e mu=%.2e tau=%.2e kappa=%.2e\n",
				w.iter, w.info.PCost, w.info.DCost, w.info.PRes, w.info.DRes, w.info.Gap, w.info.Mu, w.tau, w.kappa)
		}

		if task := d.checkExit(false); task != taskLoop {
			return task
		}
		if relaxedVerdict == taskStart {
			if task := d.checkExit(true); task != taskLoop {
				relaxedVerdict = task
			}
		}
		if task := d.checkInfeasibility(false); task != taskLoop {
			return task
		}
		if relaxedVerdict == taskStart {
			if task := d.checkInfeasibility(true); task != taskLoop {
				relaxedVerdict = task
			}
		}

		if w.iter == o.settings.MaxIter {
			break
		}

		if !w.scaling.Update(w.s, w.z, w.lambda) {
			return taskNumericalFail
		}
		num, err := o.sys.Refactorize(w.scaling)
		if err != nil {
			return taskNumericalFail
		}

		if !d.affineDirection(num) {
			return taskNumericalFail
		}

		alphaAff := o.cone.LineSearch(w.lambda, w.dsTildeAff, w.wDzAff, w.tau, w.dtauAff, w.kappa, w.dkappaAff, o.settings.StepMax)
		w.info.StepAff = alphaAff

		sigma := math.Pow(1-alphaAff, 3)
		sigma = math.Min(math.Max(sigma, o.settings.SigmaMin), o.settings.SigmaMax)
		w.info.Sigma = sigma

		if !d.combinedDirection(num, sigma) {
			return taskNumericalFail
		}

		step := o.cone.LineSearch(w.lambda, w.dsTildeFinal, w.wDzFinal, w.tau, w.dtau, w.kappa, w.dkappa, o.settings.StepMax)
		if step < o.settings.StepMin {
			return taskNumericalFail
		}
		alpha := o.settings.Gamma * step
		w.info.Step = alpha
		d.advance(alpha)
	}

	if relaxedVerdict != taskStart {
		return relaxedVerdict
	}
	return taskMaxIters
}

// initialize runs the two-KKT-solve cold start of spec.md §4.8: a trivial
// (identity-point) NT scaling is used to factorize the KKT system once,
// two solves recover a primal and a dual candidate, and each is shifted
// into the cone's strict interior with cone.BringToCone. The first solve's
// z-block equals G*x - h, so the primal slack candidate is its negation
// h - G*x. tau and kappa both start at 1.
func (d *iterDriver) initialize() bool {
	o, w := d.o, d.w
	ly := o.cone

	trivialS := make([]float64, o.m)
	trivialZ := make([]float64, o.m)
	for i := 0; i < ly.NumLP; i++ {
		trivialS[i] = 1
		trivialZ[i] = 1
	}
	for k := range ly.SOC {
		start := ly.SOCStart(k)
		trivialS[start] = 1
		trivialZ[start] = 1
	}
	sc0 := cone.NewScaling(ly)
	lamScratch := make([]float64, o.m)
	if !sc0.Update(trivialS, trivialZ, lamScratch) {
		return false
	}
	num0, err := o.sys.Refactorize(sc0)
	if err != nil {
		return false
	}

	zeroN := make([]float64, o.n)
	rhs1 := kkt.BuildRHS(zeroN, o.b, o.h, ly)
	sol1, _ := kkt.Solve(o.sys, sc0, num0, rhs1, o.settings.NItRef, o.settings.LinSysAcc)
	zNative1 := make([]float64, o.m)
	ly.GatherNative(sol1[o.n+o.p:], zNative1)
	for i := range zNative1 {
		zNative1[i] = -zNative1[i]
	}
	copy(w.x, sol1[:o.n])
	copy(w.s, ly.BringToCone(zNative1, o.settings.Gamma))

	zeroP := make([]float64, o.p)
	zeroM := make([]float64, o.m)
	rhs2 := kkt.BuildRHS(w.negC, zeroP, zeroM, ly)
	sol2, _ := kkt.Solve(o.sys, sc0, num0, rhs2, o.settings.NItRef, o.settings.LinSysAcc)
	zNative2 := make([]float64, o.m)
	ly.GatherNative(sol2[o.n+o.p:], zNative2)
	copy(w.y, sol2[o.n:o.n+o.p])
	copy(w.z, ly.BringToCone(zNative2, o.settings.Gamma))

	w.tau = 1
	w.kappa = 1
	return true
}

// computeResiduals computes the embedded residuals of spec.md §4.9:
//
//	rx = A'y + G'z + c*tau      (dual residual)
//	ry = -A*x + b*tau           (primal equality residual)
//	rz = s + G*x - h*tau        (primal cone residual)
//	rt = kappa + c'x + b'y + h'z (complementarity residual)
func (d *iterDriver) computeResiduals() {
	o, w := d.o, d.w
	o.a.MulTransVec(w.y, w.rx)
	o.g.AddMulTransVec(w.z, w.rx)
	for i := range w.rx {
		w.rx[i] += o.c[i] * w.tau
	}

	o.a.MulVec(w.x, w.ry)
	for i := range w.ry {
		w.ry[i] = o.b[i]*w.tau - w.ry[i]
	}

	o.g.MulVec(w.x, w.rz)
	for i := range w.rz {
		w.rz[i] += w.s[i] - o.h[i]*w.tau
	}

	w.info.Rt = w.kappa + floats.Dot(o.c, w.x) + floats.Dot(o.b, w.y) + floats.Dot(o.h, w.z)
}

// computeInformation fills in the scalar diagnostics of spec.md §4.9 from
// the current iterate and residuals, normalized by tau (the non-homogeneous
// quantities are recovered at tau==1).
func (d *iterDriver) computeInformation() {
	o, w := d.o, d.w
	tau := w.tau

	pcost := floats.Dot(o.c, w.x) / tau
	dcost := -(floats.Dot(o.b, w.y) + floats.Dot(o.h, w.z)) / tau

	w.info.PCost = pcost
	w.info.DCost = dcost

	szdot := floats.Dot(w.s, w.z)
	w.info.Gap = szdot
	denom := float64(o.cone.NumLP + o.cone.NumCones() + 1)
	w.info.Mu = (szdot + tau*w.kappa) / denom
	w.info.RelGap = (szdot / (tau * tau)) / (1 + math.Abs(pcost) + math.Abs(dcost))

	pres := floats.Norm(w.ry, math.Inf(1)) / tau / (1 + floats.Norm(o.b, math.Inf(1)))
	if o.m > 0 {
		hres := floats.Norm(w.rz, math.Inf(1)) / tau / (1 + floats.Norm(o.h, math.Inf(1)))
		pres = math.Max(pres, hres)
	}
	w.info.PRes = pres
	w.info.DRes = floats.Norm(w.rx, math.Inf(1)) / tau / (1 + floats.Norm(o.c, math.Inf(1)))

	w.info.Tau, w.info.Kappa = tau, w.kappa
	w.info.KapOverTau = w.kappa / tau
}

// checkExit evaluates spec.md §4.10's termination test, tight by default
// or relaxed ("_inacc") when relaxed is true.
func (d *iterDriver) checkExit(relaxed bool) iterTask {
	o := d.o
	feastol, abstol, reltol := o.settings.FeasTol, o.settings.AbsTol, o.settings.RelTol
	if relaxed {
		feastol, abstol, reltol = o.settings.FeasTolInacc, o.settings.AbsTolInacc, o.settings.RelTolInacc
	}
	info := d.w.info

	feasible := info.PRes <= feastol && info.DRes <= feastol
	gapSmall := info.Gap <= abstol || math.Abs(info.RelGap) <= reltol
	if feasible && gapSmall {
		if relaxed {
			return taskOptimalInacc
		}
		return taskOptimal
	}
	return taskLoop
}

// checkInfeasibility applies spec.md §4.9/§4.10's embedded infeasibility
// certificates, gated on tau < kappa (the embedding's signal that the
// iteration is diverging toward a certificate rather than converging to an
// optimal, tau~1/kappa~0 point): (y, z) certifies primal infeasibility
// when A'y+G'z is negligible relative to -(b'y+h'z) > 0; x certifies dual
// infeasibility when Ax and Gx+s are negligible relative to -c'x > 0.
// relaxed selects the "_inacc" tolerance, matching checkExit's split.
func (d *iterDriver) checkInfeasibility(relaxed bool) iterTask {
	o, w := d.o, d.w
	if w.tau >= w.kappa {
		return taskLoop
	}
	feastol := o.settings.FeasTol
	if relaxed {
		feastol = o.settings.FeasTolInacc
	}

	bty := floats.Dot(o.b, w.y)
	htz := floats.Dot(o.h, w.z)
	if s := -(bty + htz); s > 0 {
		cert := make([]float64, o.n)
		for i := range cert {
			cert[i] = w.rx[i] - o.c[i]*w.tau
		}
		pinfres := floats.Norm(cert, math.Inf(1)) / s
		if pinfres < feastol {
			w.info.Pinf = true
			if relaxed {
				return taskPrimalInfeasibleInacc
			}
			return taskPrimalInfeasible
		}
	}

	cx := floats.Dot(o.c, w.x)
	if s := -cx; s > 0 {
		ax := make([]float64, o.p)
		for i := range ax {
			ax[i] = o.b[i]*w.tau - w.ry[i]
		}
		gx := make([]float64, o.m)
		for i := range gx {
			gx[i] = w.rz[i] + o.h[i]*w.tau
		}
		dinfres := math.Max(floats.Norm(ax, math.Inf(1)), floats.Norm(gx, math.Inf(1))) / s
		if dinfres < feastol {
			w.info.Dinf = true
			if relaxed {
				return taskDualInfeasibleInacc
			}
			return taskDualInfeasible
		}
	}
	return taskLoop
}

// dtauDenom computes kappa/tau - c'dx1 - b'dy1 - h'dz1, the shared
// denominator of both the affine and combined tau-steps (spec.md §4.5).
func (d *iterDriver) dtauDenom() float64 {
	o, w := d.o, d.w
	return w.kappa/w.tau - floats.Dot(o.c, w.dx1) - floats.Dot(o.b, w.dy1) - floats.Dot(o.h, w.dz1)
}

// affineDirection solves the two KKT right-hand sides the affine step
// needs against the same fresh factorization num (spec.md §4.5 steps
// 1-5): RHS1 = [-c; b; h] recovers (dx1, dy1, dz1), and the affine
// RHS2 = [-rx; ry; s-rz] recovers a raw solve which, combined with dz1
// through dtau_aff, gives the affine direction's NT-scaled form
// (dsTildeAff, wDzAff) the line search and the Mehrotra corrector need.
func (d *iterDriver) affineDirection(num *sparse.Numeric) bool {
	o, w := d.o, d.w
	ly := o.cone

	rhs1 := kkt.BuildRHS(w.negC, o.b, o.h, ly)
	sol1, steps1 := kkt.Solve(o.sys, w.scaling, num, rhs1, o.settings.NItRef, o.settings.LinSysAcc)
	copy(w.dx1, sol1[:o.n])
	copy(w.dy1, sol1[o.n:o.n+o.p])
	ly.GatherNative(sol1[o.n+o.p:], w.dz1)

	negRx := make([]float64, o.n)
	for i, v := range w.rx {
		negRx[i] = -v
	}
	sMinusRz := make([]float64, o.m)
	for i := range sMinusRz {
		sMinusRz[i] = w.s[i] - w.rz[i]
	}
	rhs2 := kkt.BuildRHS(negRx, w.ry, sMinusRz, ly)
	sol2, steps2 := kkt.Solve(o.sys, w.scaling, num, rhs2, o.settings.NItRef, o.settings.LinSysAcc)
	copy(w.dx2, sol2[:o.n])
	copy(w.dy2, sol2[o.n:o.n+o.p])
	ly.GatherNative(sol2[o.n+o.p:], w.dz2)
	w.info.NumRefinementSteps1 = steps1 + steps2

	denom := d.dtauDenom()
	if denom == 0 {
		return false
	}
	w.dtauAff = (w.info.Rt - w.kappa + floats.Dot(o.c, w.dx2) + floats.Dot(o.b, w.dy2) + floats.Dot(o.h, w.dz2)) / denom

	for i := range w.dzAff {
		w.dzAff[i] = w.dz2[i] + w.dtauAff*w.dz1[i]
	}
	w.scaling.Scale(w.dzAff, w.wDzAff)
	for i := range w.dsTildeAff {
		w.dsTildeAff[i] = -w.wDzAff[i] - w.lambda[i]
	}
	w.dkappaAff = -w.kappa - (w.kappa/w.tau)*w.dtauAff
	return true
}

// combinedDirection applies the Mehrotra second-order correction and
// solves the damped, corrected RHS2 against the same factorization num
// (spec.md §4.5 steps 6-11): the correction term ds1 = lambda∘lambda +
// dsTildeAff∘wDzAff has sigma*mu subtracted at each cone block's head
// entry only, lambda\ds1 gives the corrector used both for the combined
// RHS's z-block (after one more W-scale, added to -(1-sigma)*rz) and for
// the final dsTilde. The RHS's top blocks are the affine ones, -rx and ry,
// scaled by (1-sigma).
func (d *iterDriver) combinedDirection(num *sparse.Numeric, sigma float64) bool {
	o, w := d.o, d.w
	ly := o.cone
	mu := w.info.Mu

	ly.JordanProduct(w.lambda, w.lambda, w.lamSq)
	ly.JordanProduct(w.dsTildeAff, w.wDzAff, w.crossProd)
	for i := range w.ds1 {
		w.ds1[i] = w.lamSq[i] + w.crossProd[i]
	}
	for i := 0; i < ly.NumLP; i++ {
		w.ds1[i] -= sigma * mu
	}
	for k := range ly.SOC {
		w.ds1[ly.SOCStart(k)] -= sigma * mu
	}
	if !ly.JordanDivision(w.lambda, w.ds1, w.dsTildeCorrector) {
		return false
	}
	w.scaling.Scale(w.dsTildeCorrector, w.wDsCorrector)

	damp := 1 - sigma
	topX := make([]float64, o.n)
	for i, v := range w.rx {
		topX[i] = -damp * v
	}
	topY := make([]float64, o.p)
	for i, v := range w.ry {
		topY[i] = damp * v
	}
	topZ := make([]float64, o.m)
	for i, v := range w.rz {
		topZ[i] = -damp*v + w.wDsCorrector[i]
	}
	rhs := kkt.BuildRHS(topX, topY, topZ, ly)
	sol, steps := kkt.Solve(o.sys, w.scaling, num, rhs, o.settings.NItRef, o.settings.LinSysAcc)
	w.info.NumRefinementSteps2 = steps

	dx2c := sol[:o.n]
	dy2c := sol[o.n : o.n+o.p]
	dz2c := make([]float64, o.m)
	ly.GatherNative(sol[o.n+o.p:], dz2c)

	bkappa := w.kappa*w.tau + w.dkappaAff*w.dtauAff - sigma*mu
	denom := d.dtauDenom()
	if denom == 0 {
		return false
	}
	w.dtau = (damp*w.info.Rt - bkappa/w.tau + floats.Dot(o.c, dx2c) + floats.Dot(o.b, dy2c) + floats.Dot(o.h, dz2c)) / denom

	for i := range w.dxFinal {
		w.dxFinal[i] = dx2c[i] + w.dtau*w.dx1[i]
	}
	for i := range w.dyFinal {
		w.dyFinal[i] = dy2c[i] + w.dtau*w.dy1[i]
	}
	for i := range w.dzFinal {
		w.dzFinal[i] = dz2c[i] + w.dtau*w.dz1[i]
	}

	w.scaling.Scale(w.dzFinal, w.wDzFinal)
	for i := range w.dsTildeFinal {
		w.dsTildeFinal[i] = -(w.dsTildeCorrector[i] + w.wDzFinal[i])
	}
	w.dkappa = -(bkappa + w.kappa*w.dtau) / w.tau

	w.scaling.Scale(w.dsTildeFinal, w.dsActual)
	return true
}

// advance updates the iterate by the chosen step length along the final
// direction (spec.md §4.5 step 12), including tau and kappa.
func (d *iterDriver) advance(alpha float64) {
	w := d.w
	for i := range w.x {
		w.x[i] += alpha * w.dxFinal[i]
	}
	for i := range w.y {
		w.y[i] += alpha * w.dyFinal[i]
	}
	for i := range w.z {
		w.z[i] += alpha * w.dzFinal[i]
		w.s[i] += alpha * w.dsActual[i]
	}
	w.tau += alpha * w.dtau
	w.kappa += alpha * w.dkappa
}
